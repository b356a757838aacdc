package inference

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIImageModel = openai.CreateImageModelDallE3

// OpenAI adapts the OpenAI chat and image APIs. Image requests complete
// synchronously, so the jobs it returns are already terminal.
type OpenAI struct {
	client     *openai.Client
	imageModel string
}

func NewOpenAI(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(cfg),
		imageModel: defaultOpenAIImageModel,
	}
}

// Complete streams a chat completion for a single user message.
func (o *OpenAI) Complete(ctx context.Context, spec PromptSpec) (*Stream, error) {
	req := openai.ChatCompletionRequest{
		Model: spec.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: spec.Prompt},
		},
		Temperature:     float32(spec.Options.Temperature),
		TopP:            float32(spec.Options.TopP),
		MaxTokens:       spec.Options.MaxTokens,
		PresencePenalty: float32(spec.Options.PresencePenalty),
		Stream:          true,
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, openAIError(err)
	}

	return NewStream(ctx, func(emit func(string) bool) error {
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return openAIError(err)
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !emit(choice.Delta.Content) {
					return nil
				}
			}
		}
	}), nil
}

// CreateImageJob generates the image immediately and wraps the result as a
// finished job.
func (o *OpenAI) CreateImageJob(ctx context.Context, spec PromptSpec) (Job, error) {
	prompt := spec.Prompt
	if spec.Options.NegativePrompt != "" {
		prompt += " Avoid: " + spec.Options.NegativePrompt + "."
	}
	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          o.imageModel,
		N:              1,
		Size:           imageSize(spec.Options),
		ResponseFormat: openai.CreateImageResponseFormatURL,
	}

	resp, err := o.client.CreateImage(ctx, req)
	if err != nil {
		return Job{}, openAIError(err)
	}

	job := Job{ID: "openai-" + uuid.NewString(), Status: StatusSucceeded}
	for _, d := range resp.Data {
		job.Output = append(job.Output, d.URL)
	}
	return job, nil
}

// GetJob always fails: OpenAI jobs are never left pending.
func (o *OpenAI) GetJob(ctx context.Context, id string) (Job, error) {
	return Job{}, &ProviderError{Provider: "openai", Message: fmt.Sprintf("job %s is not tracked", id)}
}

func imageSize(opts Options) string {
	if opts.Width == 0 || opts.Height == 0 {
		return openai.CreateImageSize1024x1024
	}
	return fmt.Sprintf("%dx%d", opts.Width, opts.Height)
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: "openai", StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	return &ProviderError{Provider: "openai", Message: err.Error(), Err: err}
}
