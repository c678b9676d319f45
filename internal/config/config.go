package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	API      APIConfig      `yaml:"api"`
	Cache    CacheConfig    `yaml:"cache"`
	Loader   LoaderConfig   `yaml:"loader"`
	Network  NetworkConfig  `yaml:"network"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Sync     SyncConfig     `yaml:"sync"`
	LogLevel string         `yaml:"log_level" env:"NEWSCACHE_LOG_LEVEL"`
}

// StorageConfig selects and configures the cache backend.
type StorageConfig struct {
	Backend        string         `yaml:"backend" env:"NEWSCACHE_BACKEND"` // auto, sql or memory
	Driver         string         `yaml:"driver"`                          // sqlite or postgres
	ConnectionName string         `yaml:"connection_name"`
	Path           string         `yaml:"path" env:"NEWSCACHE_DB_PATH"`
	MirrorDir      string         `yaml:"mirror_dir"`
	Database       DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type APIConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key" env:"NEWSAPI_KEY"`
	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"timeout"`
	Retry    RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// CacheConfig configures the in-session memory layer.
type CacheConfig struct {
	MemoryDisabled   bool          `yaml:"memory_disabled"`
	MemoryTTL        time.Duration `yaml:"memory_ttl"`
	MemoryMaxEntries int           `yaml:"memory_max_entries"`
}

type LoaderConfig struct {
	Country             string        `yaml:"country"`
	Category            string        `yaml:"category"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	Cooldown            time.Duration `yaml:"cooldown"`
	WriteThroughTimeout time.Duration `yaml:"write_through_timeout"`
}

type NetworkConfig struct {
	ProbeAddress    string        `yaml:"probe_address"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	Interval        time.Duration `yaml:"interval"`
	RecheckAttempts *int          `yaml:"recheck_attempts"` // nil means the default, 0 disables re-checks
	RecheckInterval time.Duration `yaml:"recheck_interval"`
	Offline         bool          `yaml:"offline" env:"NEWSCACHE_OFFLINE"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url" env:"NEWSCACHE_RABBITMQ_URL"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load reads path (a missing file leaves every value at its default),
// applies environment overrides and fills in defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "auto"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.ConnectionName == "" {
		c.Storage.ConnectionName = "news-cache-db"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(dataDir(), "news-cache.db")
	}
	if c.Storage.MirrorDir == "" {
		c.Storage.MirrorDir = filepath.Join(filepath.Dir(c.Storage.Path), "mirror")
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://newsapi.org/v2/top-headlines"
	}
	if c.API.PageSize == 0 {
		c.API.PageSize = 10
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.Retry.MaxAttempts == 0 {
		c.API.Retry.MaxAttempts = 3
	}
	if c.API.Retry.InitialBackoff == 0 {
		c.API.Retry.InitialBackoff = 1 * time.Second
	}
	if c.API.Retry.MaxBackoff == 0 {
		c.API.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Cache.MemoryTTL == 0 {
		c.Cache.MemoryTTL = 5 * time.Minute
	}
	if c.Cache.MemoryMaxEntries == 0 {
		c.Cache.MemoryMaxEntries = 32
	}
	if c.Loader.Country == "" {
		c.Loader.Country = "us"
	}
	if c.Loader.Category == "" {
		c.Loader.Category = "general"
	}
	if c.Loader.CacheTTL == 0 {
		c.Loader.CacheTTL = 30 * time.Minute
	}
	if c.Loader.Cooldown == 0 {
		c.Loader.Cooldown = 5 * time.Second
	}
	if c.Loader.WriteThroughTimeout == 0 {
		c.Loader.WriteThroughTimeout = 10 * time.Second
	}
	if c.Network.ProbeAddress == "" {
		c.Network.ProbeAddress = "newsapi.org:443"
	}
	if c.Network.ProbeTimeout == 0 {
		c.Network.ProbeTimeout = 3 * time.Second
	}
	if c.Network.Interval == 0 {
		c.Network.Interval = 10 * time.Second
	}
	if c.Network.RecheckAttempts == nil {
		attempts := 3
		c.Network.RecheckAttempts = &attempts
	}
	if c.Network.RecheckInterval == 0 {
		c.Network.RecheckInterval = 250 * time.Millisecond
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "news_cache"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "cache_events"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "news_cache_events"
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func dataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "news-cache")
	}
	return ".news-cache"
}
