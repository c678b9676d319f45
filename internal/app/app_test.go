package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news_cache/internal/config"
	"news_cache/internal/domain"
	"news_cache/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func storageConfig(t *testing.T, backend string) config.StorageConfig {
	dir := t.TempDir()
	return config.StorageConfig{
		Backend:        backend,
		Driver:         "sqlite",
		ConnectionName: t.Name(),
		Path:           filepath.Join(dir, "db", "news.db"),
		MirrorDir:      filepath.Join(dir, "mirror"),
	}
}

func TestSelectBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		want    string
	}{
		{name: "sql", backend: BackendSQL, want: "sql/sqlite"},
		{name: "memory", backend: BackendMemory, want: "memory"},
		{name: "auto with writable directory", backend: BackendAuto, want: "sql/sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := SelectBackend(storageConfig(t, tt.backend), testLogger())
			require.NoError(t, err)
			assert.Equal(t, tt.want, backend.Kind())
		})
	}
}

func TestSelectBackend_AutoFallsBackWhenDirectoryUnusable(t *testing.T) {
	cfg := storageConfig(t, BackendAuto)

	// a regular file where the database directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.Path = filepath.Join(blocker, "news.db")

	backend, err := SelectBackend(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.Kind())
}

func TestSelectBackend_Unknown(t *testing.T) {
	_, err := SelectBackend(storageConfig(t, "redis"), testLogger())
	assert.ErrorContains(t, err, "unknown storage backend")

	cfg := storageConfig(t, BackendSQL)
	cfg.Driver = "mysql"
	_, err = SelectBackend(cfg, testLogger())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestApp_OfflineLoadServesCache(t *testing.T) {
	ctx := context.Background()

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	cfg.Storage = storageConfig(t, BackendMemory)
	cfg.Network.Offline = true
	cfg.RabbitMQ.URL = ""

	a, err := New(ctx, cfg, testLogger())
	require.NoError(t, err)

	articles := []domain.Article{{URL: "https://a", Title: "A"}}
	require.True(t, a.Cache.Write(ctx, articles, "sports", time.Minute))

	feed, err := a.Loader.Load(ctx, "sports")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCached, feed.Status)
	assert.Equal(t, articles, feed.Articles)

	_, err = a.Loader.Refresh(ctx, "sports")
	assert.ErrorIs(t, err, service.ErrOffline)

	require.NoError(t, a.Close(ctx))
}

func TestApp_CurrentCategory(t *testing.T) {
	ctx := context.Background()

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	cfg.Storage = storageConfig(t, BackendSQL)
	cfg.Network.Offline = true
	cfg.RabbitMQ.URL = ""

	a, err := New(ctx, cfg, testLogger())
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Equal(t, "general", a.CurrentCategory(ctx))

	require.True(t, a.Settings.Save(ctx, SettingCategory, "science"))
	assert.Equal(t, "science", a.CurrentCategory(ctx))
}

func TestNewMonitor_ZeroRecheckAttempts(t *testing.T) {
	zero := 0
	cfg := config.NetworkConfig{Offline: true, RecheckAttempts: &zero}

	assert.Equal(t, 0, recheckAttempts(cfg))
	assert.False(t, newMonitor(cfg, testLogger()).Online(context.Background()))
}
