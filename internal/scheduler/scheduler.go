package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"news_cache/internal/domain"
)

// Loader defines the load operation the scheduler drives.
type Loader interface {
	Load(ctx context.Context, category string) (*domain.Feed, error)
}

type Scheduler struct {
	loader   Loader
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(loader Loader, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		loader:   loader,
		interval: interval,
		timeout:  time.Minute,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start loads the current category immediately and then on every tick until
// ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runLoad(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runLoad(ctx)
		}
	}
}

func (s *Scheduler) runLoad(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	feed, err := s.loader.Load(loadCtx, "")
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		s.logger.Debug("scheduled load skipped", "error", err)
	default:
		s.logger.Info("feed loaded",
			"category", feed.Category,
			"status", feed.Status,
			"articles", len(feed.Articles),
		)
	}
}
