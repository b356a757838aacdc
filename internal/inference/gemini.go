package inference

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini streams text completions from Google's Gemini models. It does not
// generate images.
type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: "failed to create client: " + err.Error(), Err: err}
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Complete(ctx context.Context, spec PromptSpec) (*Stream, error) {
	model := g.client.GenerativeModel(spec.Model)
	if t := spec.Options.Temperature; t != 0 {
		model.SetTemperature(float32(t))
	}
	if p := spec.Options.TopP; p != 0 {
		model.SetTopP(float32(p))
	}
	if n := spec.Options.MaxTokens; n != 0 {
		model.SetMaxOutputTokens(int32(n))
	}

	iter := model.GenerateContentStream(ctx, genai.Text(spec.Prompt))
	return NewStream(ctx, func(emit func(string) bool) error {
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return &ProviderError{Provider: "gemini", Message: err.Error(), Err: err}
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					text, ok := part.(genai.Text)
					if !ok || text == "" {
						continue
					}
					if !emit(string(text)) {
						return nil
					}
				}
			}
		}
	}), nil
}
