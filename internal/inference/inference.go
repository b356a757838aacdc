// Package inference talks to hosted model providers: streamed text
// completion and asynchronous image-generation jobs.
package inference

import (
	"context"
	"errors"
	"fmt"
)

// Status is the lifecycle state of a generation job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further status change can occur.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is a provider-side generation job. It is never persisted.
type Job struct {
	ID     string
	Status Status
	Output []string
	Error  string
}

// Options are the generation settings understood by the providers.
// Zero values are left out of the request so the provider default applies.
type Options struct {
	Temperature     float64
	TopP            float64
	MaxTokens       int
	MinTokens       int
	PresencePenalty float64
	PromptTemplate  string

	Width             int
	Height            int
	NumOutputs        int
	NumInferenceSteps int
	GuidanceScale     float64
	NegativePrompt    string
	Scheduler         string
}

// PromptSpec is one request to a provider.
type PromptSpec struct {
	Model   string // owner/name for hosted models
	Version string // pinned model version, images only
	Prompt  string
	Options Options
}

// TextCompleter streams a completion for a prompt.
type TextCompleter interface {
	Complete(ctx context.Context, spec PromptSpec) (*Stream, error)
}

// JobFetcher reads the current state of a job.
type JobFetcher interface {
	GetJob(ctx context.Context, id string) (Job, error)
}

// ImageGenerator starts image jobs and reports on them.
type ImageGenerator interface {
	JobFetcher
	CreateImageJob(ctx context.Context, spec PromptSpec) (Job, error)
}

// ProviderError is a transport failure or non-success response from a provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// JobFailedError is returned when a job ends in failure or succeeds
// without usable output.
type JobFailedError struct {
	JobID  string
	Reason string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("Prediction failed: %s", e.Reason)
}

// ErrProviderTimeout matches every ProviderTimeoutError.
var ErrProviderTimeout = errors.New("provider timeout")

// ProviderTimeoutError is returned when a job stays pending past the
// poller's attempt budget.
type ProviderTimeoutError struct {
	JobID    string
	Attempts int
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("job %s still pending after %d status checks", e.JobID, e.Attempts)
}

func (e *ProviderTimeoutError) Is(target error) bool {
	return target == ErrProviderTimeout
}
