package database

import (
	"context"
	"fmt"
	"time"

	"portfolio-sync/internal/shared/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoConfig holds connection settings shared by every module that talks
// to MongoDB.
type MongoConfig struct {
	ConnectionTimeout time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize       uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"10"`
	MinPoolSize       uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"2"`
}

// DefaultMongoConfig returns the settings used when nothing is configured.
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		ConnectionTimeout: 10 * time.Second,
		MaxPoolSize:       10,
		MinPoolSize:       2,
	}
}

// Connect dials uri and pings it once. A failed ping still returns the
// client: the driver reconnects on its own, and callers treat an unreachable
// remote as degraded rather than fatal.
func Connect(ctx context.Context, uri string, cfg *MongoConfig, log logger.Logger) (*mongo.Client, error) {
	if cfg == nil {
		cfg = DefaultMongoConfig()
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetConnectTimeout(cfg.ConnectionTimeout).
		SetServerSelectionTimeout(cfg.ConnectionTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		log.Warn("MongoDB not reachable yet, continuing degraded", zap.Error(err))
	} else {
		log.Info("MongoDB connection established")
	}
	return client, nil
}
