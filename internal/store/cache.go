package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"news_cache/internal/domain"
)

// DefaultTTL is applied when a write does not specify one.
const DefaultTTL = 30 * time.Minute

// CacheStore owns the article cache rows. Expiration is evaluated on every
// read and write; there is no background sweeper.
type CacheStore struct {
	backend Backend
	gate    *Gate
	logger  *slog.Logger
	now     func() time.Time
}

func NewCacheStore(backend Backend, gate *Gate, logger *slog.Logger, opts ...Option) *CacheStore {
	o := buildOptions(opts)
	return &CacheStore{
		backend: backend,
		gate:    gate,
		logger:  logger.With("component", "cache_store"),
		now:     o.now,
	}
}

// Write upserts articles under category with expiration now+ttl, purging the
// category's expired rows first. Articles without an identifier are skipped.
// It reports whether at least one article was persisted.
func (s *CacheStore) Write(ctx context.Context, articles []domain.Article, category string, ttl time.Duration) bool {
	if len(articles) == 0 {
		s.logger.Warn("refusing to cache an empty article list", "category", category)
		return false
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if err := s.gate.Wait(ctx); err != nil {
		s.logger.Error("backend not ready", "error", err)
		return false
	}

	now := s.now()
	expiration := now.Add(ttl)

	var written, skipped int
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		written, skipped = 0, 0

		if _, err := s.backend.DeleteExpiredArticles(ctx, category, now.UnixMilli()); err != nil {
			return fmt.Errorf("purge expired: %w", err)
		}

		for _, a := range articles {
			if a.ID() == "" {
				skipped++
				s.logger.Warn("skipping article without url", "category", category, "title", a.Title)
				continue
			}

			row := domain.NewCachedArticle(a, category, now, expiration)
			if err := s.backend.UpsertArticle(ctx, &row); err != nil {
				return fmt.Errorf("upsert article %s: %w", a.URL, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to cache articles", "category", category, "error", err)
		return false
	}

	s.logger.Info("cached articles",
		"category", category,
		"written", written,
		"skipped", skipped,
		"expires_at", expiration,
	)

	return written > 0
}

// Read purges the category's expired rows and returns the live ones, most
// recently published first. An empty slice with a nil error means nothing is
// cached; a non-nil error means the read itself failed.
func (s *CacheStore) Read(ctx context.Context, category string) ([]domain.CachedArticle, error) {
	if err := s.gate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for backend: %w", err)
	}

	now := s.now().UnixMilli()

	if purged, err := s.backend.DeleteExpiredArticles(ctx, category, now); err != nil {
		s.logger.Warn("failed to purge expired articles", "category", category, "error", err)
	} else if purged > 0 {
		s.logger.Debug("purged expired articles", "category", category, "count", purged)
	}

	rows, err := s.backend.QueryArticles(ctx, category, now)
	if err != nil {
		s.logger.Error("failed to read cached articles", "category", category, "error", err)
		return nil, fmt.Errorf("query articles: %w", err)
	}

	s.logger.Debug("read cached articles", "category", category, "count", len(rows))
	return rows, nil
}

// ClearAll drops every cached article. Favorites and settings are untouched.
func (s *CacheStore) ClearAll(ctx context.Context) bool {
	if err := s.gate.Wait(ctx); err != nil {
		s.logger.Error("backend not ready", "error", err)
		return false
	}

	if err := s.backend.ClearArticles(ctx); err != nil {
		s.logger.Error("failed to clear cache", "error", err)
		return false
	}

	s.logger.Info("cache cleared")
	return true
}

func (s *CacheStore) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := s.backend.(Transactor); ok {
		return tx.WithTransaction(ctx, fn)
	}
	return fn(ctx)
}
