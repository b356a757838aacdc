// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pinpress-api/internal/article"
	"pinpress-api/internal/config"
	"pinpress-api/internal/store"
)

func main() {
	mode := flag.String("mode", "serve", "Mode to run: 'serve' or 'generate'")
	topic := flag.String("topic", "", "generate: topic to suggest titles for when -title is empty")
	title := flag.String("title", "", "generate: article title")
	keyword := flag.String("keyword", "", "generate: focus keyword")
	owner := flag.String("owner", "cli", "generate: owner id the article is saved under")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer db.Close()

	app, err := newApp(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Error initializing services: %v", err)
	}
	defer app.Close()

	switch *mode {
	case "serve":
		if err := serve(ctx, cfg, app); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case "generate":
		if err := generate(ctx, cfg, app, *owner, *topic, *title, *keyword); err != nil {
			log.Fatalf("Generation failed: %v", err)
		}
	default:
		log.Fatalf("Unknown mode %q: use -mode=serve or -mode=generate", *mode)
	}
}

func serve(ctx context.Context, cfg config.Config, app *App) error {
	srv, scheduler, err := app.Server(ctx, cfg)
	if err != nil {
		return err
	}
	if scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", cfg.Addr)
		errCh <- srv.Start(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// generate runs the pipeline once from the command line.
func generate(ctx context.Context, cfg config.Config, app *App, owner, topic, title, keyword string) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.GenerationTimeout)
	defer cancel()

	if title == "" {
		if topic == "" {
			return fmt.Errorf("either -title or -topic is required")
		}
		titles, err := app.Pipeline.GenerateTitles(ctx, topic)
		if err != nil {
			return err
		}
		for _, t := range titles {
			log.Printf("Title: %s", t)
		}
		title = titles[0]
	}

	log.Printf("Starting article generation for: %s", title)
	run, err := app.Pipeline.GenerateArticle(ctx, article.Request{OwnerID: owner, Title: title, Keyword: keyword})
	if err != nil {
		return err
	}
	log.Printf("Successfully generated and saved article: %s (ID: %s, %d section images)",
		run.Article.Title, run.Article.ID, len(run.Article.Images))
	return nil
}
