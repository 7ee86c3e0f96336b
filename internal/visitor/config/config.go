package config

import (
	"errors"
	"fmt"
	"time"

	"portfolio-sync/internal/shared/retry"

	"github.com/caarlos0/env/v6"
)

// Counter store kinds
const (
	StoreMongoDB = "mongodb"
	StoreRedis   = "redis"
	StoreMemory  = "memory"
)

// VisitorConfig holds the counter service settings.
type VisitorConfig struct {
	Store         string        `env:"COUNTER_STORE" envDefault:"mongodb"`
	Timeout       time.Duration `env:"COUNTER_TIMEOUT" envDefault:"3s"`
	MaxAttempts   int           `env:"COUNTER_MAX_ATTEMPTS" envDefault:"3"`
	Backoff       time.Duration `env:"COUNTER_BACKOFF" envDefault:"200ms"`
	ProbeInterval time.Duration `env:"COUNTER_PROBE_INTERVAL" envDefault:"1m"`
	DedupTTL      time.Duration `env:"VISITOR_DEDUP_TTL" envDefault:"24h"`

	Collection     string `env:"COUNTER_COLLECTION" envDefault:"site_counters"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"portfolio"`
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*VisitorConfig, error) {
	cfg := &VisitorConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load visitor configuration from environment: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the store kind and fills zero values.
func (c *VisitorConfig) Validate() error {
	switch c.Store {
	case StoreMongoDB, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("COUNTER_STORE must be one of mongodb, redis, memory; got %q", c.Store)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("COUNTER_MAX_ATTEMPTS must be at least 1; got %d", c.MaxAttempts)
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = time.Minute
	}
	if c.DedupTTL < 0 {
		c.DedupTTL = 0
	}
	return nil
}

// RetryPolicy turns the timeout and backoff settings into a retry policy.
func (c *VisitorConfig) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    c.MaxAttempts,
		Timeout:        c.Timeout,
		InitialBackoff: c.Backoff,
		Multiplier:     2,
		MaxBackoff:     4 * c.Backoff,
	}
}

// DefaultConfig returns a VisitorConfig with the in-memory store.
func DefaultConfig() *VisitorConfig {
	return &VisitorConfig{
		Store:          StoreMemory,
		Timeout:        3 * time.Second,
		MaxAttempts:    3,
		Backoff:        200 * time.Millisecond,
		ProbeInterval:  time.Minute,
		DedupTTL:       24 * time.Hour,
		Collection:     "site_counters",
		RedisKeyPrefix: "portfolio",
	}
}
