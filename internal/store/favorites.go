package store

import (
	"context"
	"log/slog"
	"time"

	"news_cache/internal/domain"
)

// FavoritesStore owns favorite rows. Favorites never expire and do not depend
// on the article cache.
type FavoritesStore struct {
	backend Backend
	gate    *Gate
	logger  *slog.Logger
	now     func() time.Time
}

func NewFavoritesStore(backend Backend, gate *Gate, logger *slog.Logger, opts ...Option) *FavoritesStore {
	o := buildOptions(opts)
	return &FavoritesStore{
		backend: backend,
		gate:    gate,
		logger:  logger.With("component", "favorites_store"),
		now:     o.now,
	}
}

// Add stores a snapshot of article. Adding an existing favorite replaces its
// snapshot.
func (s *FavoritesStore) Add(ctx context.Context, article domain.Article, category string) bool {
	if article.ID() == "" {
		s.logger.Warn("refusing favorite without url", "title", article.Title)
		return false
	}
	if err := s.gate.Wait(ctx); err != nil {
		s.logger.Error("backend not ready", "error", err)
		return false
	}

	favorite := domain.FavoriteArticle{
		Article:   article,
		Category:  category,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.backend.UpsertFavorite(ctx, &favorite); err != nil {
		s.logger.Error("failed to save favorite", "id", article.ID(), "error", err)
		return false
	}

	s.logger.Debug("favorite saved", "id", article.ID())
	return true
}

// Remove deletes a favorite and reports whether one existed.
func (s *FavoritesStore) Remove(ctx context.Context, id string) bool {
	if err := s.gate.Wait(ctx); err != nil {
		s.logger.Error("backend not ready", "error", err)
		return false
	}

	removed, err := s.backend.DeleteFavorite(ctx, id)
	if err != nil {
		s.logger.Error("failed to remove favorite", "id", id, "error", err)
		return false
	}
	return removed
}

func (s *FavoritesStore) Contains(ctx context.Context, id string) bool {
	if err := s.gate.Wait(ctx); err != nil {
		s.logger.Error("backend not ready", "error", err)
		return false
	}

	ok, err := s.backend.HasFavorite(ctx, id)
	if err != nil {
		s.logger.Error("failed to check favorite", "id", id, "error", err)
		return false
	}
	return ok
}

// List returns every favorite, most recently saved first.
func (s *FavoritesStore) List(ctx context.Context) []domain.FavoriteArticle {
	if err := s.gate.Wait(ctx); err != nil {
		s.logger.Error("backend not ready", "error", err)
		return []domain.FavoriteArticle{}
	}

	favorites, err := s.backend.QueryFavorites(ctx)
	if err != nil {
		s.logger.Error("failed to list favorites", "error", err)
		return []domain.FavoriteArticle{}
	}
	return favorites
}
