package article

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pinpress-api/internal/domain"
	"pinpress-api/internal/inference"
)

// fakeText answers title prompts with titles and article prompts with
// articleText.
type fakeText struct {
	titles      string
	articleText string
	err         error

	mu      sync.Mutex
	prompts []string
}

func (f *fakeText) Complete(ctx context.Context, spec inference.PromptSpec) (*inference.Stream, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, spec.Prompt)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	text := f.titles
	if strings.Contains(spec.Prompt, "Pinterest article about") {
		text = f.articleText
	}
	return inference.NewStream(ctx, func(emit func(string) bool) error {
		for len(text) > 0 {
			n := 7
			if n > len(text) {
				n = len(text)
			}
			if !emit(text[:n]) {
				return nil
			}
			text = text[n:]
		}
		return nil
	}), nil
}

// fakeImages runs every job through one pending poll. Prompts containing
// any of failOn end as failed jobs.
type fakeImages struct {
	failOn    []string
	rejectOn  []string
	delay     time.Duration
	mu        sync.Mutex
	prompts   map[string]string
	next      int
	inFlight  int
	maxFlight int
	gets      int
}

func (f *fakeImages) CreateImageJob(ctx context.Context, spec inference.PromptSpec) (inference.Job, error) {
	for _, s := range f.rejectOn {
		if strings.Contains(spec.Prompt, s) {
			return inference.Job{}, &inference.ProviderError{Provider: "fake", StatusCode: 422, Message: "rejected"}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prompts == nil {
		f.prompts = map[string]string{}
	}
	f.next++
	id := fmt.Sprintf("job-%d", f.next)
	f.prompts[id] = spec.Prompt
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	return inference.Job{ID: id, Status: inference.StatusPending}, nil
}

func (f *fakeImages) GetJob(ctx context.Context, id string) (inference.Job, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	f.inFlight--
	prompt := f.prompts[id]
	for _, s := range f.failOn {
		if strings.Contains(prompt, s) {
			return inference.Job{ID: id, Status: inference.StatusFailed, Error: "NSFW content detected"}, nil
		}
	}
	return inference.Job{ID: id, Status: inference.StatusSucceeded, Output: []string{"https://img.example/" + id + ".png"}}, nil
}

func newOrchestrator(images *fakeImages) *ImageOrchestrator {
	return &ImageOrchestrator{
		Generator:      images,
		Poller:         inference.NewPoller(images, time.Millisecond, 5),
		Version:        "v1",
		CoverPolicy:    CoverStrict,
		PlaceholderURL: "https://placehold.example/cover.png",
	}
}

type fakeSaver struct {
	saved []*domain.Article
	err   error
}

func (s *fakeSaver) Create(ctx context.Context, a *domain.Article) (*domain.Article, error) {
	if s.err != nil {
		return nil, s.err
	}
	copied := *a
	copied.ID = fmt.Sprintf("art-%d", len(s.saved)+1)
	copied.CreatedAt = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	s.saved = append(s.saved, &copied)
	return &copied, nil
}

type fakeMirror struct {
	failOn string
}

func (m fakeMirror) Mirror(ctx context.Context, url string) (string, error) {
	if m.failOn != "" && strings.Contains(url, m.failOn) {
		return "", errors.New("upload failed")
	}
	return strings.Replace(url, "https://img.example/", "https://cdn.example/", 1), nil
}
