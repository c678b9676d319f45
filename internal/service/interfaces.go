package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"news_cache/internal/domain"
)

type Source interface {
	TopHeadlines(ctx context.Context, country, category string) (*domain.Page, error)
}

// Cache is the authoritative article cache.
type Cache interface {
	Write(ctx context.Context, articles []domain.Article, category string, ttl time.Duration) bool
	Read(ctx context.Context, category string) ([]domain.CachedArticle, error)
	ClearAll(ctx context.Context) bool
}

type Connectivity interface {
	Online(ctx context.Context) bool
}

// MemoryCache is the in-session layer in front of Cache, keyed by category.
// Entries never outlive the deadline they were stored with.
type MemoryCache interface {
	Get(category string) ([]domain.Article, bool)
	SetUntil(category string, articles []domain.Article, deadline time.Time)
	Invalidate(category string)
	Purge()
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.CacheEvent) error
	Close() error
}
