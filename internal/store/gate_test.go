package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"news_cache/internal/domain"
	"news_cache/internal/store/mocks"
)

func TestGate_WaitBlocksUntilReady(t *testing.T) {
	gate := NewGate()
	assert.False(t, gate.Ready())

	done := make(chan error, 1)
	go func() { done <- gate.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("wait returned before the gate opened")
	case <-time.After(20 * time.Millisecond):
	}

	gate.MarkReady(nil)
	require.NoError(t, <-done)
	assert.True(t, gate.Ready())
	assert.NoError(t, gate.Wait(context.Background()))
}

func TestGate_WaitHonoursContext(t *testing.T) {
	gate := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, gate.Wait(ctx), context.Canceled)
}

func TestGate_OpensOnlyOnce(t *testing.T) {
	gate := NewGate()
	first := errors.New("first")

	gate.MarkReady(first)
	gate.MarkReady(nil)

	assert.ErrorIs(t, gate.Err(), first)
}

func TestGate_FailedOpenStillReleasesCallers(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	openErr := errors.New("disk full")

	backend.EXPECT().Open(gomock.Any()).Return(openErr)
	backend.EXPECT().Kind().Return("mock").AnyTimes()
	backend.EXPECT().QueryFavorites(gomock.Any()).Return(nil, openErr)

	gate := NewGate()
	favorites := NewFavoritesStore(backend, gate, logger)

	result := make(chan []domain.FavoriteArticle, 1)
	go func() { result <- favorites.List(context.Background()) }()

	assert.ErrorIs(t, gate.Open(context.Background(), backend, logger), openErr)
	assert.Empty(t, <-result)
	assert.ErrorIs(t, gate.Err(), openErr)
}
