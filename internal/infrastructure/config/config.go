package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Offline   OfflineConfig
	Breaker   BreakerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds per-IP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// StorageConfig selects where preferences are persisted.
type StorageConfig struct {
	Driver string `envconfig:"STORAGE_DRIVER" default:"sqlite"`
	Path   string `envconfig:"STORAGE_PATH" default:"/tmp/poolkeeper/preferences.db"`
}

// CacheConfig selects where cache buckets are persisted.
type CacheConfig struct {
	Driver string `envconfig:"CACHE_DRIVER" default:"sqlite"`
	Path   string `envconfig:"CACHE_PATH" default:"/tmp/poolkeeper/caches.db"`
}

// OfflineConfig configures the offline cache worker and the edge in front of
// the upstream origin.
type OfflineConfig struct {
	Upstream     string        `envconfig:"UPSTREAM_URL" default:"http://localhost:3000"`
	PublicOrigin string        `envconfig:"PUBLIC_ORIGIN"`
	Manifest     string        `envconfig:"OFFLINE_MANIFEST"`
	Bypass       []string      `envconfig:"OFFLINE_BYPASS"`
	FetchTimeout time.Duration `envconfig:"OFFLINE_FETCH_TIMEOUT" default:"0s"`
}

// BreakerConfig configures the circuit breaker guarding the upstream.
type BreakerConfig struct {
	Enabled  bool          `envconfig:"BREAKER_ENABLED" default:"true"`
	Failures uint32        `envconfig:"BREAKER_FAILURES" default:"5"`
	Timeout  time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "/tmp/poolkeeper/preferences.db",
		},
		Cache: CacheConfig{
			Driver: DriverSQLite,
			Path:   "/tmp/poolkeeper/caches.db",
		},
		Offline: OfflineConfig{
			Upstream: "http://localhost:3000",
		},
		Breaker: BreakerConfig{
			Enabled:  true,
			Failures: 5,
			Timeout:  30 * time.Second,
		},
	}
}

// Validate rejects driver names that no backend implements.
func (c *Config) Validate() error {
	if !validDriver(c.Storage.Driver) {
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if !validDriver(c.Cache.Driver) {
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	if c.Offline.Upstream == "" {
		return fmt.Errorf("upstream url is required")
	}
	return nil
}

func validDriver(driver string) bool {
	return driver == DriverMemory || driver == DriverSQLite
}
