// Package store persists generated articles. Every read and delete is
// filtered by owner.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pinpress-api/internal/config"
	"pinpress-api/internal/domain"
)

// ErrNotFound is returned when no article with the given id belongs to the owner.
var ErrNotFound = errors.New("article not found")

type Store interface {
	// Create assigns an id and creation time (when zero) and saves the article.
	Create(ctx context.Context, a *domain.Article) (*domain.Article, error)
	// FindAllByOwner returns the owner's articles, newest first.
	FindAllByOwner(ctx context.Context, ownerID string) ([]domain.Article, error)
	FindOneByOwnerAndID(ctx context.Context, ownerID, id string) (*domain.Article, error)
	DeleteByOwnerAndID(ctx context.Context, ownerID, id string) error
	Close() error
}

// Open connects to the backend selected by cfg.DBType.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.DBType {
	case "sqlite", "":
		s, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("error initializing sqlite database: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("error initializing postgres database: %w", err)
		}
		return s, nil
	case "mongo":
		s, err := NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, fmt.Errorf("error initializing mongo database: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.DBType)
	}
}

func validate(a *domain.Article) error {
	if a.OwnerID == "" {
		return errors.New("article owner is required")
	}
	if a.Title == "" {
		return errors.New("article title is required")
	}
	if a.HTML == "" {
		return errors.New("article content is required")
	}
	return nil
}

// prepare copies a and fills the creation time.
func prepare(a *domain.Article) domain.Article {
	out := *a
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	if out.Images == nil {
		out.Images = []string{}
	}
	return out
}
