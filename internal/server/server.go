// Package server exposes the dashboard API over HTTP with Echo.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"pinpress-api/internal/article"
	"pinpress-api/internal/auth"
	"pinpress-api/internal/pinterest"
	"pinpress-api/internal/store"
	"pinpress-api/internal/topics"
)

// Generator produces titles and complete articles.
type Generator interface {
	GenerateTitles(ctx context.Context, topic string) ([]string, error)
	GenerateArticle(ctx context.Context, req article.Request) (*article.Run, error)
}

// Illustrator produces standalone cover and section images.
type Illustrator interface {
	CoverImage(ctx context.Context, prompt string) (string, error)
	SectionImages(ctx context.Context, prompts []string) ([]string, error)
}

// TopicSource lists topic suggestions.
type TopicSource interface {
	Topics(ctx context.Context) []topics.Topic
}

// Publisher is the Pinterest integration.
type Publisher interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	CreatePin(ctx context.Context, accessToken string, pin pinterest.Pin) (*pinterest.CreatedPin, error)
}

// Deps are the collaborators the handlers call. Topics and Pinterest may be nil.
type Deps struct {
	Generator   Generator
	Illustrator Illustrator
	Store       store.Store
	Verifier    auth.Verifier
	Topics      TopicSource
	Pinterest   Publisher

	// GenerationTimeout bounds each generation request.
	GenerationTimeout time.Duration
	// RateLimit is the number of generation requests allowed per owner per minute.
	RateLimit    int
	AllowOrigins []string
}

type Server struct {
	Echo *echo.Echo

	deps    Deps
	limiter *Limiter
}

func New(deps Deps) *Server {
	s := &Server{
		Echo:    echo.New(),
		deps:    deps,
		limiter: NewLimiter(deps.RateLimit, time.Minute),
	}
	s.Echo.HideBanner = true
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	e := s.Echo

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/auth/pinterest/callback", s.handlePinterestCallback)

	api := e.Group("/api", s.requireAuth)

	api.POST("/titles", s.handleTitles, s.rateLimit)
	api.POST("/article", s.handleArticle, s.rateLimit)
	api.POST("/image", s.handleImage, s.rateLimit)

	api.GET("/articles", s.handleListArticles)
	api.POST("/articles", s.handleCreateArticle)
	api.GET("/articles/:id", s.handleGetArticle)
	api.DELETE("/articles/:id", s.handleDeleteArticle)

	api.GET("/topics", s.handleTopics)

	api.GET("/auth/pinterest", s.handlePinterestAuth)
	api.POST("/pinterest/pins", s.handleCreatePin)
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	if err := s.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Echo.Shutdown(ctx)
}
