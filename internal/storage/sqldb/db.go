package sqldb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotOpen is returned by every operation when the backend failed to open.
var ErrNotOpen = errors.New("database connection is not open")

// Config selects the named connection a Backend uses.
type Config struct {
	Name   string
	Driver string
	DSN    string
}

// shared is a registered connection and the number of backends holding it.
type shared struct {
	db   *sqlx.DB
	refs int
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*shared)
)

// connection returns the process-wide connection registered under cfg.Name,
// creating it on first use. Every call must be paired with release.
func connection(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if conn, ok := registry[cfg.Name]; ok {
		conn.refs++
		return conn.db, nil
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	registry[cfg.Name] = &shared{db: db, refs: 1}
	return db, nil
}

// release drops one hold on the named connection and closes it when the
// last holder lets go.
func release(name string, db *sqlx.DB) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	conn, ok := registry[name]
	if !ok || conn.db != db {
		return db.Close()
	}

	conn.refs--
	if conn.refs > 0 {
		return nil
	}
	delete(registry, name)
	return db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS news (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		url          TEXT NOT NULL DEFAULT '',
		url_to_image TEXT NOT NULL DEFAULT '',
		published_at TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL DEFAULT '',
		author       TEXT NOT NULL DEFAULT '',
		category     TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL DEFAULT '{}',
		timestamp    BIGINT NOT NULL,
		expiration   BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_news_category ON news(category)`,
	`CREATE INDEX IF NOT EXISTS idx_news_expiration ON news(expiration)`,
	`CREATE TABLE IF NOT EXISTS favorites (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		url          TEXT NOT NULL DEFAULT '',
		url_to_image TEXT NOT NULL DEFAULT '',
		published_at TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL DEFAULT '',
		author       TEXT NOT NULL DEFAULT '',
		category     TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL DEFAULT '{}',
		timestamp    BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id    TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
}

// Backend is the structured database backend. One statement set serves both
// SQLite and PostgreSQL; placeholders are rebound per driver.
type Backend struct {
	cfg    Config
	logger *slog.Logger

	mu sync.RWMutex
	db *sqlx.DB
}

func New(cfg Config, logger *slog.Logger) *Backend {
	return &Backend{
		cfg:    cfg,
		logger: logger.With("backend", "sql", "driver", cfg.Driver),
	}
}

func (b *Backend) Kind() string {
	return "sql/" + b.cfg.Driver
}

// Open connects, reusing a registered connection of the same name, and
// creates the schema. Calling it again is a no-op.
func (b *Backend) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return nil
	}

	db, err := connection(ctx, b.cfg)
	if err != nil {
		return err
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = release(b.cfg.Name, db)
			return fmt.Errorf("create schema: %w", err)
		}
	}

	b.db = db
	b.logger.Info("database opened", "name", b.cfg.Name)
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	db := b.db
	b.db = nil
	return release(b.cfg.Name, db)
}

// DB exposes the underlying connection, nil until Open succeeded.
func (b *Backend) DB() *sqlx.DB {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.db
}

func (b *Backend) executor(ctx context.Context) (sqlx.ExtContext, error) {
	db := b.DB()
	if db == nil {
		return nil, ErrNotOpen
	}
	return GetExecutor(ctx, db), nil
}
