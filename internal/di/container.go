package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portfolio-sync/internal/shared/database"
	"portfolio-sync/internal/shared/eventbus"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/sitedata"
	siteconfig "portfolio-sync/internal/sitedata/config"
	"portfolio-sync/internal/visitor"
	visitorconfig "portfolio-sync/internal/visitor/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Container owns the modules of one surface and the connections they share.
type Container struct {
	mu sync.RWMutex

	// Module instances
	SiteData *sitedata.SiteDataModule
	Visitor  *visitor.VisitorModule

	// Shared by both modules
	Events *eventbus.EventBus
	Logger logger.Logger

	// ownedRedis is a client the container opened for the counter because
	// the site data module did not need one.
	ownedRedis *redis.Client
}

// NewContainer creates an empty container. Its bus delivers each event once,
// synchronously, so a failing subscriber never delays or repeats a change.
func NewContainer(log logger.Logger) *Container {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Container{
		Events: eventbus.NewEventBusWithConfig(log, eventbus.BusConfig{}),
		Logger: log,
	}
}

// Initialize builds the site data module and then the visitor module on the
// same event bus, handing the counter whichever Redis and MongoDB
// connections the site data module opened.
func (c *Container) Initialize(ctx context.Context, siteCfg *siteconfig.SiteDataConfig, visitorCfg *visitorconfig.VisitorConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	site, err := sitedata.NewSiteDataModule(ctx, siteCfg, c.Events, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create sitedata module: %w", err)
	}
	if err := c.initializeVisitor(ctx, site, visitorCfg); err != nil {
		site.Stop()
		return err
	}
	c.SiteData = site
	return nil
}

// InitializeWithModules installs modules built elsewhere, as tests do.
func (c *Container) InitializeWithModules(site *sitedata.SiteDataModule, v *visitor.VisitorModule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SiteData = site
	c.Visitor = v
}

func (c *Container) initializeVisitor(ctx context.Context, site *sitedata.SiteDataModule, cfg *visitorconfig.VisitorConfig) error {
	if cfg == nil {
		cfg = visitorconfig.DefaultConfig()
	}

	var deps visitor.Deps
	if site.MongoDB != nil {
		deps.MongoDB = database.NewMongoDatabaseProvider(site.MongoDB)
	}
	deps.Redis = site.RedisClient
	if deps.Redis == nil && cfg.Store == visitorconfig.StoreRedis {
		client := siteconfig.NewRedisClient(&site.Config.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			c.Logger.Warn("Redis unreachable for the visitor counter",
				zap.String("addr", site.Config.Redis.GetAddr()), zap.Error(err))
		} else {
			c.ownedRedis = client
			deps.Redis = client
		}
	}

	v, err := visitor.NewVisitorModule(cfg, deps, c.Events, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create visitor module: %w", err)
	}
	c.Visitor = v
	return nil
}

// Start starts both modules. The initial remote pull runs in the
// background.
func (c *Container) Start(ctx context.Context) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.SiteData != nil {
		c.SiteData.Start(ctx)
	}
	if c.Visitor != nil {
		c.Visitor.Start(ctx)
	}
}

// HealthCheck checks the local medium and the counter store. A degraded
// remote is reported by the sync status rather than here.
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.SiteData != nil {
		if err := c.SiteData.HealthCheck(ctx); err != nil {
			return fmt.Errorf("sitedata health check failed: %w", err)
		}
	}
	if c.Visitor != nil {
		if err := c.Visitor.HealthCheck(ctx); err != nil {
			return fmt.Errorf("visitor health check failed: %w", err)
		}
	}
	return nil
}

// Cleanup stops the modules in reverse order of initialization and closes
// what the container opened itself.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	if c.Visitor != nil {
		if err := c.Visitor.Stop(); err != nil {
			errs = append(errs, err)
		}
		c.Visitor = nil
	}

	if c.SiteData != nil {
		done := make(chan error, 1)
		site := c.SiteData
		go func() { done <- site.Stop() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("sitedata stop: %w", ctx.Err()))
		}
		c.SiteData = nil
	}

	if c.ownedRedis != nil {
		if err := c.ownedRedis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.ownedRedis = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// Close shuts everything down with a 30 second limit.
func (c *Container) Close() error {
	c.Logger.Info("Closing DI container resources...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Cleanup(ctx); err != nil {
		c.Logger.Warn("Cleanup errors occurred", zap.Error(err))
		return err
	}

	c.Logger.Info("DI container resources closed.")
	return nil
}
