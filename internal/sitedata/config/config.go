package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v6"
)

// Local medium kinds
const (
	MediumRedis  = "redis"
	MediumSQLite = "sqlite"
	MediumMemory = "memory"
)

// Remote feed kinds
const (
	FeedChangeStream = "changestream"
	FeedWebSocket    = "websocket"
	FeedNone         = "none"
)

// RedisConfig holds the connection and key layout for the Redis medium.
type RedisConfig struct {
	Host            string `env:"REDIS_HOST" envDefault:"localhost"`
	Port            string `env:"REDIS_PORT" envDefault:"6379"`
	Password        string `env:"REDIS_PASSWORD"`
	Database        int    `env:"REDIS_DB" envDefault:"0"`
	MaxRetries      int    `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	PoolSize        int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns    int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	EnableTLS       bool   `env:"REDIS_ENABLE_TLS" envDefault:"false"`
	ConnMaxIdleTime string `env:"REDIS_CONN_MAX_IDLE_TIME" envDefault:"30m"`
	ConnMaxLifetime string `env:"REDIS_CONN_MAX_LIFETIME" envDefault:"1h"`

	KeyPrefix       string `env:"REDIS_KEY_PREFIX" envDefault:"portfolio"`
	SignalStream    string `env:"REDIS_SIGNAL_STREAM" envDefault:"signals"`
	StreamMaxLength int64  `env:"REDIS_STREAM_MAX_LEN" envDefault:"1000"`
}

// GetAddr returns host:port.
func (c *RedisConfig) GetAddr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// RealtimeConfig holds the websocket surface settings.
type RealtimeConfig struct {
	// WebSocketPath is the endpoint browser tabs listen on.
	WebSocketPath string `env:"WEBSOCKET_PATH" envDefault:"/ws/v1/listen" json:"websocket_path"`

	// ClientSendChannelBuffer bounds the frames queued for one slow client.
	ClientSendChannelBuffer int `env:"CLIENT_SEND_CHANNEL_BUFFER" envDefault:"32" json:"client_send_channel_buffer"`
}

// AdminConfig holds the admin token settings.
type AdminConfig struct {
	JWTSecret string `env:"ADMIN_JWT_SECRET"`
	JWTIssuer string `env:"ADMIN_JWT_ISSUER" envDefault:"portfolio-sync"`
}

// SiteDataConfig holds all configuration for the sitedata module.
type SiteDataConfig struct {
	LocalMedium        string        `env:"LOCAL_MEDIUM" envDefault:"sqlite"`
	SQLitePath         string        `env:"SQLITE_PATH" envDefault:"sitedata.db"`
	SignalPollInterval time.Duration `env:"SIGNAL_POLL_INTERVAL" envDefault:"500ms"`
	SyncBackupInterval time.Duration `env:"SYNC_BACKUP_INTERVAL" envDefault:"5s"`
	RemoteTimeout      time.Duration `env:"REMOTE_TIMEOUT" envDefault:"5s"`

	// An empty MongoDBURI disables the cloud reconciler.
	MongoDBURI      string `env:"MONGODB_URI"`
	MongoDBDatabase string `env:"MONGODB_DATABASE" envDefault:"portfolio"`
	RemoteFeed      string `env:"REMOTE_FEED" envDefault:"changestream"`
	RemoteFeedURL   string `env:"REMOTE_FEED_URL"`

	Redis    RedisConfig
	Realtime RealtimeConfig
	Admin    AdminConfig
}

// RemoteEnabled reports whether a remote store is configured.
func (c *SiteDataConfig) RemoteEnabled() bool {
	return c.MongoDBURI != ""
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*SiteDataConfig, error) {
	cfg := &SiteDataConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load sitedata configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Redis); err != nil {
		return nil, errors.New("failed to load redis configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Realtime); err != nil {
		return nil, errors.New("failed to load realtime configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Admin); err != nil {
		return nil, errors.New("failed to load admin configuration from environment: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and fills zero intervals.
func (c *SiteDataConfig) Validate() error {
	switch c.LocalMedium {
	case MediumRedis, MediumSQLite, MediumMemory:
	default:
		return fmt.Errorf("LOCAL_MEDIUM must be one of redis, sqlite, memory; got %q", c.LocalMedium)
	}
	switch c.RemoteFeed {
	case FeedChangeStream, FeedNone:
	case FeedWebSocket:
		if c.RemoteFeedURL == "" {
			return errors.New("REMOTE_FEED_URL is required when REMOTE_FEED=websocket")
		}
	default:
		return fmt.Errorf("REMOTE_FEED must be one of changestream, websocket, none; got %q", c.RemoteFeed)
	}
	if c.LocalMedium == MediumSQLite && c.SQLitePath == "" {
		return errors.New("SQLITE_PATH must be set for the sqlite medium")
	}
	if c.SignalPollInterval <= 0 {
		c.SignalPollInterval = 500 * time.Millisecond
	}
	if c.SyncBackupInterval <= 0 {
		c.SyncBackupInterval = 5 * time.Second
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = 5 * time.Second
	}
	if c.Realtime.WebSocketPath == "" {
		c.Realtime.WebSocketPath = "/ws/v1/listen"
	}
	if c.Realtime.ClientSendChannelBuffer <= 0 {
		c.Realtime.ClientSendChannelBuffer = 32
	}
	return nil
}

// DefaultConfig returns a SiteDataConfig with an in-memory medium and no remote.
func DefaultConfig() *SiteDataConfig {
	return &SiteDataConfig{
		LocalMedium:        MediumMemory,
		SQLitePath:         "sitedata.db",
		SignalPollInterval: 500 * time.Millisecond,
		SyncBackupInterval: 5 * time.Second,
		RemoteTimeout:      5 * time.Second,
		MongoDBDatabase:    "portfolio",
		RemoteFeed:         FeedNone,
		Redis: RedisConfig{
			Host:            "localhost",
			Port:            "6379",
			MaxRetries:      3,
			PoolSize:        10,
			MinIdleConns:    2,
			ConnMaxIdleTime: "30m",
			ConnMaxLifetime: "1h",
			KeyPrefix:       "portfolio",
			SignalStream:    "signals",
			StreamMaxLength: 1000,
		},
		Realtime: RealtimeConfig{
			WebSocketPath:           "/ws/v1/listen",
			ClientSendChannelBuffer: 32,
		},
		Admin: AdminConfig{
			JWTIssuer: "portfolio-sync",
		},
	}
}
