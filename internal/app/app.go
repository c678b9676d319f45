package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"news_cache/internal/config"
	"news_cache/internal/domain"
	"news_cache/internal/memcache"
	"news_cache/internal/network"
	"news_cache/internal/publisher"
	"news_cache/internal/service"
	"news_cache/internal/source/newsapi"
	"news_cache/internal/storage/memory"
	"news_cache/internal/storage/sqldb"
	"news_cache/internal/store"
)

const (
	BackendAuto   = "auto"
	BackendSQL    = "sql"
	BackendMemory = "memory"

	// SettingCategory remembers the last category the user loaded.
	SettingCategory = "category"
)

// App holds the wired components of the news cache.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Backend   store.Backend
	Gate      *store.Gate
	Cache     *store.CacheStore
	Favorites *store.FavoritesStore
	Settings  *store.SettingsStore
	Monitor   *network.Monitor
	Loader    *service.NewsLoader

	publisher *publisher.RabbitMQ
}

// New wires every component. The backend is opened in the background; store
// operations wait for it through the readiness gate.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	backend, err := SelectBackend(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	gate := store.NewGate()
	go gate.Open(context.WithoutCancel(ctx), backend, logger)

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Backend:   backend,
		Gate:      gate,
		Cache:     store.NewCacheStore(backend, gate, logger),
		Favorites: store.NewFavoritesStore(backend, gate, logger),
		Settings:  store.NewSettingsStore(backend, gate, logger),
		Monitor:   newMonitor(cfg.Network, logger),
	}

	var mem service.MemoryCache
	if !cfg.Cache.MemoryDisabled {
		mem = memcache.New[[]domain.Article](cfg.Cache.MemoryMaxEntries, cfg.Cache.MemoryTTL)
	}

	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rmq, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Warn("cache events disabled", "error", err)
		} else {
			a.publisher = rmq
			pub = rmq
		}
	}

	source := newsapi.New(newsapi.Config{
		BaseURL:        cfg.API.BaseURL,
		APIKey:         cfg.API.APIKey,
		PageSize:       cfg.API.PageSize,
		Timeout:        cfg.API.Timeout,
		MaxAttempts:    cfg.API.Retry.MaxAttempts,
		InitialBackoff: cfg.API.Retry.InitialBackoff,
		MaxBackoff:     cfg.API.Retry.MaxBackoff,
	}, logger)

	a.Loader = service.NewNewsLoader(source, a.Cache, mem, a.Monitor, pub, logger, cfg.Loader)

	return a, nil
}

// CurrentCategory is the remembered category, or the configured default.
func (a *App) CurrentCategory(ctx context.Context) string {
	if category, ok := a.Settings.Get(ctx, SettingCategory); ok && category != "" {
		return category
	}
	return a.Config.Loader.Category
}

// Close waits for pending write-throughs and releases the backend.
func (a *App) Close(ctx context.Context) error {
	a.Loader.Wait()

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn("failed to close publisher", "error", err)
		}
	}

	_ = a.Gate.Wait(ctx)
	return a.Backend.Close()
}

// SelectBackend picks the backend once at startup. In auto mode SQLite is
// used when its directory is writable, otherwise the fallback backend.
func SelectBackend(cfg config.StorageConfig, logger *slog.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case BackendSQL:
		return newSQLBackend(cfg, logger)
	case BackendMemory:
		return newMemoryBackend(cfg, logger), nil
	case BackendAuto:
		if cfg.Driver == sqldb.DriverPostgres {
			return newSQLBackend(cfg, logger)
		}
		if err := probeDir(filepath.Dir(cfg.Path)); err != nil {
			logger.Warn("database directory unusable, using fallback backend",
				"path", cfg.Path,
				"error", err,
			)
			return newMemoryBackend(cfg, logger), nil
		}
		return newSQLBackend(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newSQLBackend(cfg config.StorageConfig, logger *slog.Logger) (store.Backend, error) {
	var dsn string
	switch cfg.Driver {
	case sqldb.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + cfg.Path + "?_pragma=busy_timeout(5000)"
	case sqldb.DriverPostgres:
		dsn = cfg.Database.DSN()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	return sqldb.New(sqldb.Config{
		Name:   cfg.ConnectionName,
		Driver: cfg.Driver,
		DSN:    dsn,
	}, logger), nil
}

func newMemoryBackend(cfg config.StorageConfig, logger *slog.Logger) store.Backend {
	var mirror memory.Mirror
	if err := probeDir(cfg.MirrorDir); err != nil {
		logger.Warn("mirror directory unusable, cache will not survive restarts",
			"dir", cfg.MirrorDir,
			"error", err,
		)
	} else {
		mirror = memory.NewDiskMirror(cfg.MirrorDir)
	}
	return memory.New(mirror, logger)
}

func newMonitor(cfg config.NetworkConfig, logger *slog.Logger) *network.Monitor {
	var device, runtime network.Signal
	if cfg.Offline {
		device, runtime = network.Fixed(false), network.Fixed(false)
	} else {
		device = network.NewInterfaceSignal()
		runtime = &network.DialSignal{Address: cfg.ProbeAddress, Timeout: cfg.ProbeTimeout}
	}

	return network.NewMonitor(device, runtime, network.Config{
		RecheckAttempts: recheckAttempts(cfg),
		RecheckInterval: cfg.RecheckInterval,
	}, logger)
}

func recheckAttempts(cfg config.NetworkConfig) int {
	if cfg.RecheckAttempts == nil {
		return 0
	}
	return *cfg.RecheckAttempts
}

// probeDir checks that dir can be created and written to.
func probeDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
