package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news_cache/internal/domain"
)

type countingLoader struct {
	mu         sync.Mutex
	categories []string
	err        error
	loaded     chan struct{}
}

func (l *countingLoader) Load(_ context.Context, category string) (*domain.Feed, error) {
	l.mu.Lock()
	l.categories = append(l.categories, category)
	n := len(l.categories)
	l.mu.Unlock()

	if n == 3 {
		close(l.loaded)
	}
	if l.err != nil {
		return nil, l.err
	}
	return &domain.Feed{Category: "general", Status: domain.StatusLive}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_LoadsImmediatelyAndOnTick(t *testing.T) {
	loader := &countingLoader{loaded: make(chan struct{})}
	sched := NewScheduler(loader, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Start(ctx) }()

	select {
	case <-loader.loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not load three times")
	}
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)

	loader.mu.Lock()
	defer loader.mu.Unlock()
	for _, c := range loader.categories {
		assert.Empty(t, c, "scheduler loads the current category")
	}
}

func TestScheduler_KeepsRunningOnErrors(t *testing.T) {
	loader := &countingLoader{loaded: make(chan struct{}), err: errors.New("load debounced")}
	sched := NewScheduler(loader, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sched.Start(ctx) }()

	select {
	case <-loader.loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler stopped after a failed load")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
