package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"pinpress-api/internal/domain"
)

// SQLite stores articles in a local SQLite database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	s := &SQLite{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    keyword TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    cover_image TEXT NOT NULL DEFAULT '',
    images TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS articles_user_created ON articles (user_id, created_at DESC);
`)
	return err
}

func (s *SQLite) Create(ctx context.Context, a *domain.Article) (*domain.Article, error) {
	if err := validate(a); err != nil {
		return nil, err
	}
	out := prepare(a)
	out.ID = uuid.NewString()

	images, err := json.Marshal(out.Images)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO articles (id, user_id, title, keyword, content, cover_image, images, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.OwnerID, out.Title, out.Keyword, out.HTML, out.CoverImage, string(images), out.CreatedAt.UTC().Format(sqliteTime),
	)
	if err != nil {
		return nil, fmt.Errorf("error saving article: %w", err)
	}
	return &out, nil
}

// Fixed-width UTC timestamps keep created_at sortable as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

const sqliteColumns = `id, user_id, title, keyword, content, cover_image, images, created_at`

func (s *SQLite) FindAllByOwner(ctx context.Context, ownerID string) ([]domain.Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM articles WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := []domain.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return articles, nil
}

func (s *SQLite) FindOneByOwnerAndID(ctx context.Context, ownerID, id string) (*domain.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM articles WHERE id = ? AND user_id = ?`, id, ownerID)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *SQLite) DeleteByOwnerAndID(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (*domain.Article, error) {
	var a domain.Article
	var images, created string
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Title, &a.Keyword, &a.HTML, &a.CoverImage, &images, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(images), &a.Images); err != nil {
		return nil, fmt.Errorf("decode images of %s: %w", a.ID, err)
	}
	t, err := time.Parse(sqliteTime, created)
	if err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", a.ID, err)
	}
	a.CreatedAt = t
	return &a, nil
}
