package sitedata

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"portfolio-sync/internal/shared/database"
	"portfolio-sync/internal/shared/eventbus"
	"portfolio-sync/internal/shared/logger"
	httpadapter "portfolio-sync/internal/sitedata/adapter/http"
	"portfolio-sync/internal/sitedata/adapter/persistence/memory"
	mongopersistence "portfolio-sync/internal/sitedata/adapter/persistence/mongodb"
	"portfolio-sync/internal/sitedata/adapter/persistence/redisstore"
	"portfolio-sync/internal/sitedata/adapter/persistence/sqlitestore"
	"portfolio-sync/internal/sitedata/adapter/realtime"
	"portfolio-sync/internal/sitedata/adapter/security"
	"portfolio-sync/internal/sitedata/config"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"
	"portfolio-sync/internal/sitedata/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// SiteDataModule owns the local collections, the change bus, the optional
// cloud reconciler and the HTTP surface built on them.
type SiteDataModule struct {
	Config     *config.SiteDataConfig
	Logger     logger.Logger
	Medium     repository.Medium
	Remote     repository.RemoteStore
	Feed       repository.RemoteFeed
	Bus        *usecase.ChangeBus
	Store      *usecase.EntityStore
	Reconciler *usecase.CloudReconciler
	Guestbook  *usecase.Guestbook
	Tokens     *security.AdminTokenService
	Middleware *httpadapter.Middleware
	Stream     *httpadapter.ChangeStreamHandler

	RedisClient *redis.Client
	MongoClient *mongo.Client
	MongoDB     *mongo.Database

	startOnce sync.Once
	syncDone  chan struct{}
}

// NewSiteDataModule connects the configured local medium and, when
// MONGODB_URI is set, the remote store and its change feed. events may be
// shared with other modules; nil creates a private bus.
func NewSiteDataModule(ctx context.Context, cfg *config.SiteDataConfig, events *eventbus.EventBus, log logger.Logger) (*SiteDataModule, error) {
	if log == nil {
		log = logger.NewLogger()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log.Info("Initializing SiteData module",
		zap.String("medium", cfg.LocalMedium), zap.Bool("remote", cfg.RemoteEnabled()))

	var (
		medium      repository.Medium
		redisClient *redis.Client
		err         error
	)
	switch cfg.LocalMedium {
	case config.MediumRedis:
		redisClient = config.NewRedisClient(&cfg.Redis)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect redis medium at %s: %w", cfg.Redis.GetAddr(), err)
		}
		medium = redisstore.NewMedium(redisClient, redisstore.Options{
			KeyPrefix:       cfg.Redis.KeyPrefix,
			SignalStream:    cfg.Redis.SignalStream,
			StreamMaxLength: cfg.Redis.StreamMaxLength,
		}, log)
	case config.MediumSQLite:
		medium, err = sqlitestore.Open(cfg.SQLitePath, sqlitestore.Options{
			PollInterval: cfg.SignalPollInterval,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite medium: %w", err)
		}
	default:
		medium = memory.NewHub().Attach()
		log.Warn("Using the in-memory medium; collections will not survive a restart")
	}

	var (
		remote      repository.RemoteStore
		feed        repository.RemoteFeed
		mongoClient *mongo.Client
		mongoDB     *mongo.Database
	)
	if cfg.RemoteEnabled() {
		mongoClient, err = database.Connect(ctx, cfg.MongoDBURI, nil, log)
		if err != nil {
			medium.Close()
			if redisClient != nil {
				redisClient.Close()
			}
			return nil, err
		}
		mongoDB = mongoClient.Database(cfg.MongoDBDatabase)
		provider := database.NewMongoDatabaseProvider(mongoDB)
		remote = mongopersistence.NewRemoteStore(provider, log)

		switch cfg.RemoteFeed {
		case config.FeedChangeStream:
			feed = mongopersistence.NewChangeFeed(provider, log)
		case config.FeedWebSocket:
			feed = realtime.NewWebSocketFeed(cfg.RemoteFeedURL, http.Header{}, log)
		}
	}

	m := NewSiteDataModuleWithDeps(cfg, events, log, medium, remote, feed)
	m.RedisClient = redisClient
	m.MongoClient = mongoClient
	m.MongoDB = mongoDB
	return m, nil
}

// NewSiteDataModuleWithDeps assembles the module over already constructed
// adapters. remote and feed may be nil.
func NewSiteDataModuleWithDeps(cfg *config.SiteDataConfig, events *eventbus.EventBus, log logger.Logger, medium repository.Medium, remote repository.RemoteStore, feed repository.RemoteFeed) *SiteDataModule {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	bus := usecase.NewChangeBus(events, medium, cfg.SyncBackupInterval, log)
	store := usecase.NewEntityStore(medium, bus, log)
	reconciler := usecase.NewCloudReconciler(store, bus, remote, feed, cfg.RemoteTimeout, log)
	guestbook := usecase.NewGuestbook(store, reconciler, log)
	tokens := security.NewAdminTokenService(cfg.Admin)
	if !tokens.Enabled() {
		log.Warn("ADMIN_JWT_SECRET not set, admin routes will reject every request")
	}

	return &SiteDataModule{
		Config:     cfg,
		Logger:     log,
		Medium:     medium,
		Remote:     remote,
		Feed:       feed,
		Bus:        bus,
		Store:      store,
		Reconciler: reconciler,
		Guestbook:  guestbook,
		Tokens:     tokens,
		Middleware: httpadapter.NewMiddleware(tokens, log),
		Stream:     httpadapter.NewChangeStreamHandler(bus, cfg.Realtime.ClientSendChannelBuffer, log),
		syncDone:   make(chan struct{}),
	}
}

// RegisterRoutes mounts the REST API and the websocket listener.
func (m *SiteDataModule) RegisterRoutes(router fiber.Router) {
	httpadapter.NewSiteDataHandler(m.Store, m.Guestbook, m.Reconciler, m.Logger).RegisterRoutes(router, m.Middleware)
	m.Stream.RegisterRoutes(router, m.Config.Realtime.WebSocketPath)
	m.Logger.Info("SiteData routes registered", zap.String("websocket_path", m.Config.Realtime.WebSocketPath))
}

// Start begins listening for cross-process signals and runs the initial
// remote pull in the background. Readers are served from the local medium
// meanwhile.
func (m *SiteDataModule) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.Bus.Start(ctx)
		go func() {
			defer close(m.syncDone)
			m.Reconciler.Start(ctx)
		}()
	})
}

// SyncAndStart is Start followed by waiting for the initial remote pull.
func (m *SiteDataModule) SyncAndStart(ctx context.Context) error {
	m.Start(ctx)
	select {
	case <-m.syncDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the reconciler state.
func (m *SiteDataModule) Status() model.SyncStatus {
	return m.Reconciler.Status()
}

// HealthCheck verifies the local medium answers. A degraded remote is
// reported through Status, not as unhealthy.
func (m *SiteDataModule) HealthCheck(ctx context.Context) error {
	if _, _, err := m.Medium.Get(ctx, model.KeyProfile); err != nil {
		return fmt.Errorf("local medium: %w", err)
	}
	return nil
}

// Stop drains background pushes and releases every connection.
func (m *SiteDataModule) Stop() error {
	m.Logger.Info("Stopping SiteData module...")
	m.Reconciler.Stop()
	m.Bus.Stop()

	var errs []error
	if err := m.Medium.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close medium: %w", err))
	}
	if m.RedisClient != nil {
		if err := m.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if m.MongoClient != nil {
		if err := m.MongoClient.Disconnect(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongodb: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("sitedata stop: %v", errs)
	}
	m.Logger.Info("SiteData module stopped.")
	return nil
}
