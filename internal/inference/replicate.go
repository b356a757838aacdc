package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultReplicateURL = "https://api.replicate.com/v1"

// Replicate is a client for the Replicate predictions API. It serves both
// streamed text completion and image jobs.
type Replicate struct {
	token   string
	baseURL string
	client  *http.Client
}

// ReplicateOption configures a Replicate client.
type ReplicateOption func(*Replicate)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) ReplicateOption {
	return func(r *Replicate) {
		if u != "" {
			r.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) ReplicateOption {
	return func(r *Replicate) {
		r.client = c
	}
}

func NewReplicate(token string, opts ...ReplicateOption) *Replicate {
	r := &Replicate{
		token:   token,
		baseURL: defaultReplicateURL,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	URLs   struct {
		Get    string `json:"get"`
		Stream string `json:"stream"`
	} `json:"urls"`
}

func (p prediction) job() Job {
	job := Job{ID: p.ID, Output: decodeOutput(p.Output), Error: decodeMessage(p.Error)}
	switch p.Status {
	case "succeeded":
		job.Status = StatusSucceeded
	case "failed", "canceled":
		job.Status = StatusFailed
		if job.Error == "" && p.Status == "canceled" {
			job.Error = "prediction canceled"
		}
	default:
		job.Status = StatusPending
	}
	return job
}

// decodeOutput accepts the shapes image models return: a list of URLs or a
// single URL.
func decodeOutput(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	return nil
}

func decodeMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
		return detail.Detail
	}
	return string(raw)
}

func replicateInput(spec PromptSpec) map[string]interface{} {
	o := spec.Options
	input := map[string]interface{}{"prompt": spec.Prompt}
	set := func(key string, v interface{}, ok bool) {
		if ok {
			input[key] = v
		}
	}
	set("temperature", o.Temperature, o.Temperature != 0)
	set("top_p", o.TopP, o.TopP != 0)
	set("max_tokens", o.MaxTokens, o.MaxTokens != 0)
	set("min_tokens", o.MinTokens, o.MinTokens != 0)
	set("presence_penalty", o.PresencePenalty, o.PresencePenalty != 0)
	set("prompt_template", o.PromptTemplate, o.PromptTemplate != "")
	set("width", o.Width, o.Width != 0)
	set("height", o.Height, o.Height != 0)
	set("num_outputs", o.NumOutputs, o.NumOutputs != 0)
	set("num_inference_steps", o.NumInferenceSteps, o.NumInferenceSteps != 0)
	set("guidance_scale", o.GuidanceScale, o.GuidanceScale != 0)
	set("negative_prompt", o.NegativePrompt, o.NegativePrompt != "")
	set("scheduler", o.Scheduler, o.Scheduler != "")
	return input
}

func predictionPath(spec PromptSpec) string {
	if spec.Version != "" {
		return "/predictions"
	}
	return "/models/" + spec.Model + "/predictions"
}

// Complete starts a streaming prediction and follows its event stream.
func (r *Replicate) Complete(ctx context.Context, spec PromptSpec) (*Stream, error) {
	body := map[string]interface{}{
		"input":  replicateInput(spec),
		"stream": true,
	}
	if spec.Version != "" {
		body["version"] = spec.Version
	}

	var p prediction
	if err := r.do(ctx, http.MethodPost, predictionPath(spec), body, &p); err != nil {
		return nil, err
	}
	if p.URLs.Stream == "" {
		return nil, &ProviderError{Provider: "replicate", Message: "prediction " + p.ID + " has no stream URL"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URLs.Stream, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "replicate", Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}

	return NewStream(ctx, func(emit func(string) bool) error {
		defer resp.Body.Close()
		return readEvents(resp.Body, emit)
	}), nil
}

// readEvents parses a server-sent event stream. "output" events carry text,
// "error" ends the stream with a failure and "done" ends it cleanly.
func readEvents(body io.Reader, emit func(string) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data []string
	dispatch := func() (bool, error) {
		defer func() { event, data = "", nil }()
		if event == "" && len(data) == 0 {
			return false, nil
		}
		payload := strings.Join(data, "\n")
		switch event {
		case "", "output":
			return !emit(payload), nil
		case "error":
			return true, &ProviderError{Provider: "replicate", Message: decodeMessage(json.RawMessage(payload))}
		case "done":
			return true, nil
		}
		return false, nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			stop, err := dispatch()
			if err != nil || stop {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return &ProviderError{Provider: "replicate", Message: "stream interrupted: " + err.Error(), Err: err}
	}
	_, err := dispatch()
	return err
}

// CreateImageJob starts an image prediction and returns it without waiting.
func (r *Replicate) CreateImageJob(ctx context.Context, spec PromptSpec) (Job, error) {
	body := map[string]interface{}{"input": replicateInput(spec)}
	if spec.Version != "" {
		body["version"] = spec.Version
	}
	var p prediction
	if err := r.do(ctx, http.MethodPost, predictionPath(spec), body, &p); err != nil {
		return Job{}, err
	}
	return p.job(), nil
}

// GetJob fetches the current state of a prediction.
func (r *Replicate) GetJob(ctx context.Context, id string) (Job, error) {
	var p prediction
	if err := r.do(ctx, http.MethodGet, "/predictions/"+id, nil, &p); err != nil {
		return Job{}, err
	}
	return p.job(), nil
}

func (r *Replicate) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body to JSON: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: "replicate", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: "replicate", StatusCode: resp.StatusCode, Message: "failed to decode response: " + err.Error(), Err: err}
	}
	return nil
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(decodeMessage(raw))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &ProviderError{Provider: "replicate", StatusCode: resp.StatusCode, Message: msg}
}
