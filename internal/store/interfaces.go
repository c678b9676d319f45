package store

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"news_cache/internal/domain"
)

// Backend is the CRUD contract shared by the structured database backend and
// the in-memory fallback. Timestamps are epoch milliseconds. An empty
// category passed to DeleteExpiredArticles purges every category.
type Backend interface {
	Kind() string
	Open(ctx context.Context) error
	Close() error

	UpsertArticle(ctx context.Context, article *domain.CachedArticle) error
	QueryArticles(ctx context.Context, category string, now int64) ([]domain.CachedArticle, error)
	DeleteExpiredArticles(ctx context.Context, category string, now int64) (int64, error)
	ClearArticles(ctx context.Context) error

	UpsertFavorite(ctx context.Context, favorite *domain.FavoriteArticle) error
	DeleteFavorite(ctx context.Context, id string) (bool, error)
	HasFavorite(ctx context.Context, id string) (bool, error)
	QueryFavorites(ctx context.Context) ([]domain.FavoriteArticle, error)

	GetSetting(ctx context.Context, id string) (*domain.Setting, error)
	PutSetting(ctx context.Context, setting *domain.Setting) error
}

// Transactor is implemented by backends that can apply a group of writes
// atomically. Stores use it when available.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
