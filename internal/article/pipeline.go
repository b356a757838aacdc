// Package article turns a topic into a finished, illustrated article:
// title suggestions, article HTML, images and the final save.
package article

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"pinpress-api/internal/domain"
	"pinpress-api/internal/inference"
)

// State is a step of the article pipeline.
type State string

const (
	AwaitingTopic   State = "awaiting_topic"
	TitlesGenerated State = "titles_generated"
	TitleChosen     State = "title_chosen"
	ArticleDrafted  State = "article_drafted"
	ImagesAttached  State = "images_attached"
	Persisted       State = "persisted"
	Failed          State = "failed"
)

var (
	ErrNoTitles   = errors.New("no titles produced")
	ErrEmptyTitle = errors.New("title is required")
)

// StageError is a pipeline failure. State is the last state reached
// before the failure.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a store rejection.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "failed to save article: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Saver persists finished articles.
type Saver interface {
	Create(ctx context.Context, a *domain.Article) (*domain.Article, error)
}

// ImageMirror copies a provider image URL to durable storage.
type ImageMirror interface {
	Mirror(ctx context.Context, url string) (string, error)
}

// Request selects the article to generate. Keyword switches to the keyword
// flow with a fixed section count.
type Request struct {
	OwnerID string
	Title   string
	Keyword string
}

// Run records one article generation.
type Run struct {
	States      []State
	Composition Composition
	Article     *domain.Article
}

// State returns the current state of the run.
func (r *Run) State() State {
	return r.States[len(r.States)-1]
}

func (r *Run) enter(s State) {
	r.States = append(r.States, s)
}

// Pipeline wires the text provider, the composer, image generation and
// storage into one fixed sequence. No stage is retried.
type Pipeline struct {
	Text        inference.TextCompleter
	TitleSpec   inference.PromptSpec
	ArticleSpec inference.PromptSpec
	Composer    Composer
	Images      *ImageOrchestrator
	Mirror      ImageMirror // optional
	Saver       Saver
}

// GenerateTitles asks the model for candidate titles about topic.
func (p *Pipeline) GenerateTitles(ctx context.Context, topic string) ([]string, error) {
	spec := p.TitleSpec
	spec.Prompt = TitlesPrompt(topic)

	raw, err := p.complete(ctx, spec)
	if err != nil {
		return nil, &StageError{State: AwaitingTopic, Err: fmt.Errorf("Failed to generate titles: %w", err)}
	}
	titles := ExtractTitles(raw)
	if len(titles) == 0 {
		log.Printf("[pipeline] no numbered titles in response for topic %q: %s", topic, raw)
		return nil, &StageError{State: AwaitingTopic, Err: ErrNoTitles}
	}
	log.Printf("[pipeline] generated %d titles for topic %q", len(titles), topic)
	return titles, nil
}

// GenerateArticle runs the pipeline from a chosen title to a saved article.
// On failure the returned Run ends in Failed and the error is a *StageError.
func (p *Pipeline) GenerateArticle(ctx context.Context, req Request) (*Run, error) {
	run := &Run{States: []State{TitleChosen}}
	fail := func(err error) (*Run, error) {
		state := run.State()
		run.enter(Failed)
		log.Printf("[pipeline] failed after %s: %v", state, err)
		return run, &StageError{State: state, Err: err}
	}

	if strings.TrimSpace(req.Title) == "" {
		return fail(ErrEmptyTitle)
	}
	if req.Keyword != "" {
		run.Composition = p.Composer.ComposeKeyword(req.Keyword, req.Title)
	} else {
		run.Composition = p.Composer.Compose(req.Title)
	}
	comp := run.Composition
	log.Printf("[pipeline] composing %q with %d sections", comp.DisplayTitle, comp.SectionCount)

	spec := p.ArticleSpec
	spec.Prompt = comp.Prompt
	raw, err := p.complete(ctx, spec)
	if err != nil {
		return fail(fmt.Errorf("Failed to generate article content: %w", err))
	}
	html, err := p.Composer.Validate(raw, comp.SectionCount)
	if err != nil {
		var malformed *MalformedArticleError
		if errors.As(err, &malformed) {
			log.Printf("[pipeline] malformed article (%s), raw response:\n%s", malformed.Reason, malformed.Raw)
		}
		return fail(err)
	}
	run.enter(ArticleDrafted)

	cover, err := p.Images.CoverImage(ctx, comp.DisplayTitle)
	if err != nil {
		return fail(err)
	}
	sections, err := Sections(html)
	if err != nil {
		return fail(fmt.Errorf("failed to split sections: %w", err))
	}
	images, err := p.Images.SectionImages(ctx, sections)
	if err != nil {
		return fail(err)
	}

	cover = p.mirror(ctx, cover)
	for i := range images {
		images[i] = p.mirror(ctx, images[i])
	}
	run.Article = &domain.Article{
		OwnerID:    req.OwnerID,
		Title:      comp.DisplayTitle,
		Keyword:    comp.Keyword,
		HTML:       html,
		CoverImage: cover,
		Images:     images,
	}
	run.enter(ImagesAttached)

	saved, err := p.Saver.Create(ctx, run.Article)
	if err != nil {
		return fail(&PersistenceError{Err: err})
	}
	run.Article = saved
	run.enter(Persisted)
	log.Printf("[pipeline] saved article %s for %s", saved.ID, saved.OwnerID)
	return run, nil
}

func (p *Pipeline) complete(ctx context.Context, spec inference.PromptSpec) (string, error) {
	stream, err := p.Text.Complete(ctx, spec)
	if err != nil {
		return "", err
	}
	return inference.Collect(ctx, stream)
}

// mirror keeps the provider URL when there is no mirror, the slot is a
// placeholder or the copy fails.
func (p *Pipeline) mirror(ctx context.Context, url string) string {
	if p.Mirror == nil || url == "" || url == p.Images.PlaceholderURL || url == p.Images.SectionPlaceholder {
		return url
	}
	mirrored, err := p.Mirror.Mirror(ctx, url)
	if err != nil {
		log.Printf("[pipeline] keeping provider URL %s: %v", url, err)
		return url
	}
	return mirrored
}
