// Package visitor wires the site visitor counter.
package visitor

import (
	"context"
	"fmt"

	"portfolio-sync/internal/shared/database"
	"portfolio-sync/internal/shared/eventbus"
	"portfolio-sync/internal/shared/logger"
	httpadapter "portfolio-sync/internal/visitor/adapter/http"
	"portfolio-sync/internal/visitor/adapter/persistence/memory"
	mongopersistence "portfolio-sync/internal/visitor/adapter/persistence/mongodb"
	"portfolio-sync/internal/visitor/adapter/persistence/redisstore"
	"portfolio-sync/internal/visitor/config"
	"portfolio-sync/internal/visitor/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the shared connections the counter may use. Either may be nil.
type Deps struct {
	MongoDB database.DatabaseProvider
	Redis   *redis.Client
}

// VisitorModule owns the counter service and its HTTP handler.
type VisitorModule struct {
	Config  *config.VisitorConfig
	Logger  logger.Logger
	Service *usecase.CounterService
	Handler *httpadapter.CounterHandler
	// Store is the backend actually in use, which may differ from
	// Config.Store when its connection was not supplied.
	Store string
}

// NewVisitorModule picks the counter backend named by cfg.Store. A store
// whose connection is missing falls back to the in-memory counter with a
// warning. The dedup gate uses Redis whenever a client is available.
func NewVisitorModule(cfg *config.VisitorConfig, deps Deps, events *eventbus.EventBus, log logger.Logger) (*VisitorModule, error) {
	if log == nil {
		log = logger.NewLogger()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("visitor config: %w", err)
	}

	var (
		b     usecase.Backends
		store = cfg.Store
	)
	switch {
	case cfg.Store == config.StoreMongoDB && deps.MongoDB != nil:
		s := mongopersistence.NewCounterStore(deps.MongoDB, cfg.Collection, log)
		b = usecase.Backends{Reader: s, Atomic: s.Atomic(), Fallback: s.Fallback(), Prober: s}
	case cfg.Store == config.StoreRedis && deps.Redis != nil:
		s := redisstore.NewCounterStore(deps.Redis, cfg.RedisKeyPrefix, log)
		b = usecase.Backends{Reader: s, Atomic: s.Atomic(), Fallback: s.Fallback(), Prober: s}
	default:
		if cfg.Store != config.StoreMemory {
			log.Warn("Counter store connection not configured, counting in memory",
				zap.String("requested", cfg.Store))
		}
		store = config.StoreMemory
		c := memory.NewCounter()
		b = usecase.Backends{Reader: c, Atomic: c.Atomic(), Fallback: c.Fallback(), Prober: c}
	}

	if deps.Redis != nil {
		b.Gate = redisstore.NewCounterStore(deps.Redis, cfg.RedisKeyPrefix, log)
	} else {
		b.Gate = memory.NewGate()
	}

	svc := usecase.NewCounterService(b, usecase.Options{
		Retry:         cfg.RetryPolicy(),
		ProbeInterval: cfg.ProbeInterval,
		DedupTTL:      cfg.DedupTTL,
	}, events, log)

	log.Info("Visitor module initialized", zap.String("store", store))
	return &VisitorModule{
		Config:  cfg,
		Logger:  log,
		Service: svc,
		Handler: httpadapter.NewCounterHandler(svc, log),
		Store:   store,
	}, nil
}

// Start probes the atomic increment path once.
func (m *VisitorModule) Start(ctx context.Context) {
	m.Service.Probe(ctx)
	m.Logger.Info("Visitor counter ready", zap.Bool("atomic", m.Service.AtomicAvailable()))
}

// RegisterRoutes mounts /api/visitor-count. mws typically carry the
// visitor-id middleware.
func (m *VisitorModule) RegisterRoutes(router fiber.Router, mws ...fiber.Handler) {
	m.Handler.RegisterRoutes(router, mws...)
}

// HealthCheck reports whether the counter backend answers a read.
func (m *VisitorModule) HealthCheck(ctx context.Context) error {
	if res := m.Service.Read(ctx); !res.Success {
		return fmt.Errorf("counter store %s unreachable", m.Store)
	}
	return nil
}

// Stop is a no-op; the connections belong to the caller.
func (m *VisitorModule) Stop() error {
	m.Logger.Info("Visitor module stopped.")
	return nil
}
