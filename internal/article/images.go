package article

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"pinpress-api/internal/inference"
)

// CoverPolicy decides what happens when the cover image cannot be generated.
type CoverPolicy string

const (
	// CoverStrict fails the article.
	CoverStrict CoverPolicy = "strict"
	// CoverPlaceholder substitutes ImageOrchestrator.PlaceholderURL.
	CoverPlaceholder CoverPolicy = "placeholder"
)

const maxExcerpt = 200

// ErrAllSectionsFailed is returned by SectionImages when no section image
// could be generated.
var ErrAllSectionsFailed = errors.New("Failed to generate any point images")

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// ImageOrchestrator generates the cover image and one image per section.
type ImageOrchestrator struct {
	Generator inference.ImageGenerator
	Poller    *inference.Poller

	Model   string
	Version string
	Options inference.Options

	CoverPolicy        CoverPolicy
	PlaceholderURL     string
	SectionPlaceholder string

	// Workers bounds concurrent section jobs. Values below 2 run sections
	// one after another.
	Workers int
}

// CoverImage returns the first output URL of a cover job for title.
func (o *ImageOrchestrator) CoverImage(ctx context.Context, title string) (string, error) {
	log.Printf("[images] generating cover image for: %s", title)
	url, err := o.generate(ctx, CoverPrompt(title))
	if err == nil {
		return url, nil
	}
	if o.CoverPolicy == CoverPlaceholder && ctx.Err() == nil {
		log.Printf("[images] cover image failed, using placeholder: %v", err)
		return o.PlaceholderURL, nil
	}
	return "", fmt.Errorf("Failed to generate cover image: %w", err)
}

// SectionImages returns one URL per section, in section order. A section
// whose image fails gets SectionPlaceholder instead. The slice always has
// len(sections) entries, even when an error is returned.
func (o *ImageOrchestrator) SectionImages(ctx context.Context, sections []string) ([]string, error) {
	urls := make([]string, len(sections))
	ok := make([]bool, len(sections))

	var g errgroup.Group
	g.SetLimit(o.workers())
	for i, section := range sections {
		i, section := i, section
		g.Go(func() error {
			url, err := o.sectionImage(ctx, section)
			if err != nil {
				log.Printf("[images] section %d failed: %v", i+1, err)
				urls[i] = o.SectionPlaceholder
				return nil
			}
			urls[i], ok[i] = url, true
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return urls, err
	}
	for _, done := range ok {
		if done {
			return urls, nil
		}
	}
	if len(sections) > 0 {
		return urls, ErrAllSectionsFailed
	}
	return urls, nil
}

func (o *ImageOrchestrator) workers() int {
	if o.Workers < 2 {
		return 1
	}
	return o.Workers
}

func (o *ImageOrchestrator) sectionImage(ctx context.Context, section string) (string, error) {
	excerpt := SectionExcerpt(section)
	if excerpt == "" {
		return "", errors.New("section has no text")
	}
	log.Printf("[images] generating image for point: %.100s...", excerpt)
	return o.generate(ctx, SectionPrompt(excerpt))
}

func (o *ImageOrchestrator) generate(ctx context.Context, prompt string) (string, error) {
	job, err := o.Generator.CreateImageJob(ctx, inference.PromptSpec{
		Model:   o.Model,
		Version: o.Version,
		Prompt:  prompt,
		Options: o.Options,
	})
	if err != nil {
		return "", err
	}
	done, err := o.Poller.Await(ctx, job)
	if err != nil {
		return "", err
	}
	return done.Output[0], nil
}

// SectionExcerpt strips tags from a section fragment and returns at most
// the first 200 characters of its text.
func SectionExcerpt(fragment string) string {
	text := htmlTag.ReplaceAllString(fragment, " ")
	text = html.UnescapeString(text)
	text = strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
	if r := []rune(text); len(r) > maxExcerpt {
		text = string(r[:maxExcerpt])
	}
	return text
}

func CoverPrompt(title string) string {
	return fmt.Sprintf("Create a stunning Pinterest cover image for: \"%s\". Make it eye-catching and professional.", title)
}

func SectionPrompt(excerpt string) string {
	return fmt.Sprintf("Create a Pinterest-style image for this tip: \"%s\". Make it visually appealing and professional.", excerpt)
}
