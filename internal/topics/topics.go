// Package topics suggests article topics from RSS and Atom feeds.
package topics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

// DefaultCategories are offered when no feed is configured or reachable.
var DefaultCategories = []string{
	"Fashion",
	"Technology",
	"Food",
	"Travel",
	"Lifestyle",
	"Health",
	"Business",
	"Education",
}

// Topic is a single suggestion.
type Topic struct {
	Keyword   string     `json:"keyword"`
	Source    string     `json:"source"`
	Link      string     `json:"link,omitempty"`
	Published *time.Time `json:"published,omitempty"`
}

const defaultRetryAfter = time.Minute

// Service fetches feeds and caches the resulting topic list.
type Service struct {
	parser     *gofeed.Parser
	feeds      []string
	limit      int
	retryAfter time.Duration

	mu        sync.RWMutex
	topics    []Topic
	fetchedAt time.Time
	retryAt   time.Time // set while the cache holds the fallback list
}

func NewService(feeds []string, limit int) *Service {
	return &Service{
		parser:     gofeed.NewParser(),
		feeds:      feeds,
		limit:      limit,
		retryAfter: defaultRetryAfter,
	}
}

// Topics returns the cached list, fetching it on first use. Without
// feeds, or when every feed fails, the default categories are returned.
// After a failed fetch the defaults are served from cache for retryAfter
// before the feeds are tried again.
func (s *Service) Topics(ctx context.Context) []Topic {
	s.mu.RLock()
	cached, retryAt := s.topics, s.retryAt
	s.mu.RUnlock()
	if cached != nil && (retryAt.IsZero() || time.Now().Before(retryAt)) {
		return cached
	}

	topics, err := s.Refresh(ctx)
	if err != nil {
		log.Printf("[topics] Error refreshing topics: %v", err)
		fallback := defaults(s.limit)
		s.mu.Lock()
		s.topics = fallback
		s.retryAt = time.Now().Add(s.retryAfter)
		s.mu.Unlock()
		return fallback
	}
	return topics
}

// FetchedAt reports when the cache was last filled by a successful refresh.
func (s *Service) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// Refresh fetches every feed and replaces the cache. A feed that fails is
// skipped; an error is returned only when all of them fail.
func (s *Service) Refresh(ctx context.Context) ([]Topic, error) {
	if len(s.feeds) == 0 {
		topics := defaults(s.limit)
		s.store(topics)
		return topics, nil
	}

	var (
		topics []Topic
		errs   []error
		seen   = make(map[string]bool)
	)
	for _, url := range s.feeds {
		feed, err := s.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			log.Printf("[topics] Error fetching feed %s: %v", url, err)
			errs = append(errs, fmt.Errorf("failed to parse feed %s: %w", url, err))
			continue
		}
		source := strings.TrimSpace(feed.Title)
		if source == "" {
			source = url
		}
		for _, item := range feed.Items {
			keyword := Normalize(item.Title)
			key := strings.ToLower(keyword)
			if keyword == "" || seen[key] {
				continue
			}
			seen[key] = true
			topics = append(topics, Topic{
				Keyword:   keyword,
				Source:    source,
				Link:      item.Link,
				Published: item.PublishedParsed,
			})
		}
	}
	if len(errs) == len(s.feeds) {
		return nil, errors.Join(errs...)
	}

	if s.limit > 0 && len(topics) > s.limit {
		topics = topics[:s.limit]
	}
	if topics == nil {
		topics = []Topic{}
	}
	s.store(topics)
	log.Printf("[topics] Refreshed %d topics from %d feeds", len(topics), len(s.feeds)-len(errs))
	return topics, nil
}

func (s *Service) store(topics []Topic) {
	s.mu.Lock()
	s.topics = topics
	s.fetchedAt = time.Now()
	s.retryAt = time.Time{}
	s.mu.Unlock()
}

// Normalize collapses whitespace in a feed item title.
func Normalize(title string) string {
	return strings.Join(strings.Fields(title), " ")
}

func defaults(limit int) []Topic {
	topics := make([]Topic, 0, len(DefaultCategories))
	for _, c := range DefaultCategories {
		topics = append(topics, Topic{Keyword: c, Source: "default"})
	}
	if limit > 0 && len(topics) > limit {
		topics = topics[:limit]
	}
	return topics
}
