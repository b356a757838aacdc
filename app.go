package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"pinpress-api/internal/article"
	"pinpress-api/internal/auth"
	"pinpress-api/internal/config"
	"pinpress-api/internal/inference"
	"pinpress-api/internal/media"
	"pinpress-api/internal/media/webp"
	"pinpress-api/internal/pinterest"
	"pinpress-api/internal/server"
	"pinpress-api/internal/store"
	"pinpress-api/internal/topics"
)

const (
	defaultOpenAITextModel = "gpt-4o-mini"
	defaultGeminiTextModel = "gemini-1.5-flash"
)

// App holds the long-lived services shared by both run modes.
type App struct {
	Pipeline *article.Pipeline
	Images   *article.ImageOrchestrator
	Store    store.Store

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, db store.Store) (*App, error) {
	app := &App{Store: db}

	text, textModel, err := app.textCompleter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	images, err := imageGenerator(cfg)
	if err != nil {
		return nil, err
	}

	m := cfg.Models
	app.Images = &article.ImageOrchestrator{
		Generator: images,
		Poller:    inference.NewPoller(images, cfg.PollInterval, cfg.PollMaxAttempts),
		Model:     m.ImageModel,
		Version:   m.ImageVersion,
		Options: inference.Options{
			Width:             m.ImageWidth,
			Height:            m.ImageHeight,
			NumOutputs:        1,
			NumInferenceSteps: m.InferenceSteps,
			GuidanceScale:     m.GuidanceScale,
			NegativePrompt:    m.NegativePrompt,
			Scheduler:         m.Scheduler,
		},
		CoverPolicy:        article.CoverPolicy(cfg.CoverPolicy),
		PlaceholderURL:     cfg.PlaceholderURL,
		SectionPlaceholder: cfg.SectionPlaceholder,
		Workers:            cfg.SectionWorkers,
	}

	app.Pipeline = &article.Pipeline{
		Text: text,
		TitleSpec: inference.PromptSpec{
			Model: textModel,
			Options: inference.Options{
				Temperature:     m.TitleTemperature,
				TopP:            m.TopP,
				PresencePenalty: m.PresencePenalty,
				PromptTemplate:  m.PromptTemplate,
			},
		},
		ArticleSpec: inference.PromptSpec{
			Model: textModel,
			Options: inference.Options{
				Temperature:     m.ArticleTemperature,
				TopP:            m.TopP,
				MaxTokens:       m.ArticleMaxTokens,
				PresencePenalty: m.PresencePenalty,
			},
		},
		Composer: article.Composer{MaxSections: cfg.MaxSections},
		Images:   app.Images,
		Saver:    db,
	}

	if cfg.MirrorImages {
		uploader, err := media.NewSupabase(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
		if err != nil {
			return nil, err
		}
		app.Pipeline.Mirror = media.NewMirror(uploader, webp.NewOptimizer())
		log.Printf("Mirroring generated images to bucket %s", cfg.SupabaseBucket)
	}

	log.Printf("Using %s for text (%s) and %s for images", cfg.TextProvider, textModel, cfg.ImageProvider)
	return app, nil
}

// textCompleter returns the configured provider and the model name to send it.
// The default model ids are Replicate's, so other providers fall back to
// their own default when the configured id looks like owner/name.
func (a *App) textCompleter(ctx context.Context, cfg config.Config) (inference.TextCompleter, string, error) {
	model := cfg.Models.TextModel
	switch cfg.TextProvider {
	case "replicate":
		return newReplicate(cfg), model, nil
	case "openai":
		if strings.Contains(model, "/") {
			model = defaultOpenAITextModel
		}
		return inference.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), model, nil
	case "gemini":
		if strings.Contains(model, "/") {
			model = defaultGeminiTextModel
		}
		g, err := inference.NewGemini(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, g.Close)
		return g, model, nil
	default:
		return nil, "", fmt.Errorf("unknown inference provider: %s", cfg.TextProvider)
	}
}

func imageGenerator(cfg config.Config) (inference.ImageGenerator, error) {
	switch cfg.ImageProvider {
	case "replicate":
		return newReplicate(cfg), nil
	case "openai":
		return inference.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported image provider: %s", cfg.ImageProvider)
	}
}

func newReplicate(cfg config.Config) *inference.Replicate {
	var opts []inference.ReplicateOption
	if cfg.ReplicateBaseURL != "" {
		opts = append(opts, inference.WithBaseURL(cfg.ReplicateBaseURL))
	}
	return inference.NewReplicate(cfg.ReplicateAPIToken, opts...)
}

// Server builds the HTTP surface and, when feeds are configured, the topic
// refresh scheduler.
func (a *App) Server(ctx context.Context, cfg config.Config) (*server.Server, *topics.Scheduler, error) {
	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	topicService := topics.NewService(cfg.TopicFeeds, cfg.TopicLimit)
	var scheduler *topics.Scheduler
	if len(cfg.TopicFeeds) > 0 {
		scheduler = topics.NewScheduler(topicService, cfg.TopicRefresh)
	}

	deps := server.Deps{
		Generator:         a.Pipeline,
		Illustrator:       a.Images,
		Store:             a.Store,
		Verifier:          verifier,
		Topics:            topicService,
		GenerationTimeout: cfg.GenerationTimeout,
		RateLimit:         cfg.GenerationRateLimit,
	}
	if cfg.PinterestEnabled() {
		deps.Pinterest = pinterest.NewClient(pinterest.Config{
			AppID:        cfg.PinterestAppID,
			AppSecret:    cfg.PinterestAppSecret,
			RedirectURI:  cfg.PinterestRedirectURI,
			DefaultBoard: cfg.PinterestBoardID,
		})
	} else {
		log.Printf("Warning: Pinterest credentials not set, publishing is disabled")
	}
	return server.New(deps), scheduler, nil
}

func newVerifier(ctx context.Context, cfg config.Config) (auth.Verifier, error) {
	switch cfg.AuthMode {
	case "static":
		log.Printf("Warning: using static bearer tokens for %d owners", len(cfg.StaticTokens))
		return auth.NewStatic(cfg.StaticTokens), nil
	case "firebase":
		return auth.NewFirebase(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials)
	default:
		return nil, fmt.Errorf("unknown auth mode: %s", cfg.AuthMode)
	}
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Printf("Error closing client: %v", err)
		}
	}
}
