package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pinpress-api/internal/domain"
)

// articleRow is the gorm model behind the articles table.
type articleRow struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key"`
	UserID     string         `gorm:"column:userId;not null;index:idx_articles_user_created,priority:1"`
	Title      string         `gorm:"not null;type:text"`
	Keyword    string         `gorm:"type:text;default:''"`
	Content    string         `gorm:"not null;type:text"`
	CoverImage string         `gorm:"column:coverImage;type:text"`
	Images     pq.StringArray `gorm:"type:text[];default:'{}'"`
	CreatedAt  time.Time      `gorm:"column:createdAt;default:CURRENT_TIMESTAMP;index:idx_articles_user_created,priority:2,sort:desc"`
}

func (articleRow) TableName() string {
	return "articles"
}

func (r articleRow) article() domain.Article {
	images := []string(r.Images)
	if images == nil {
		images = []string{}
	}
	return domain.Article{
		ID:         r.ID.String(),
		OwnerID:    r.UserID,
		Title:      r.Title,
		Keyword:    r.Keyword,
		HTML:       r.Content,
		CoverImage: r.CoverImage,
		Images:     images,
		CreatedAt:  r.CreatedAt,
	}
}

// Postgres stores articles through gorm.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&articleRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate articles table: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Create(ctx context.Context, a *domain.Article) (*domain.Article, error) {
	if err := validate(a); err != nil {
		return nil, err
	}
	in := prepare(a)
	row := &articleRow{
		ID:         uuid.New(),
		UserID:     in.OwnerID,
		Title:      in.Title,
		Keyword:    in.Keyword,
		Content:    in.HTML,
		CoverImage: in.CoverImage,
		Images:     pq.StringArray(in.Images),
		CreatedAt:  in.CreatedAt,
	}
	if err := p.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("error saving article: %w", err)
	}
	out := row.article()
	return &out, nil
}

func (p *Postgres) FindAllByOwner(ctx context.Context, ownerID string) ([]domain.Article, error) {
	var rows []articleRow
	err := p.db.WithContext(ctx).
		Where(`"userId" = ?`, ownerID).
		Order(`"createdAt" DESC`).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	articles := make([]domain.Article, 0, len(rows))
	for _, r := range rows {
		articles = append(articles, r.article())
	}
	return articles, nil
}

func (p *Postgres) FindOneByOwnerAndID(ctx context.Context, ownerID, id string) (*domain.Article, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var row articleRow
	err = p.db.WithContext(ctx).
		Where(`id = ? AND "userId" = ?`, uid, ownerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a := row.article()
	return &a, nil
}

func (p *Postgres) DeleteByOwnerAndID(ctx context.Context, ownerID, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	res := p.db.WithContext(ctx).
		Where(`id = ? AND "userId" = ?`, uid, ownerID).
		Delete(&articleRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
