package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"portfolio-sync/internal/di"
	"portfolio-sync/internal/shared/logger"
	siteconfig "portfolio-sync/internal/sitedata/config"
	visitorconfig "portfolio-sync/internal/visitor/config"

	"github.com/caarlos0/env/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host         string `env:"SERVER_HOST" envDefault:"localhost"`
	Port         string `env:"SERVER_PORT" envDefault:"3000"`
	AllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
}

func main() {
	fmt.Println("🚀 Portfolio Sync starting...")

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file loaded: %v", err)
	}
	serverCfg := &ServerConfig{}
	if err := env.Parse(serverCfg); err != nil {
		log.Fatalf("Invalid server configuration: %v", err)
	}
	siteCfg, err := siteconfig.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid sitedata configuration: %v", err)
	}
	visitorCfg, err := visitorconfig.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid visitor configuration: %v", err)
	}
	appLogger := logger.NewLogger()

	// Cancelled on SIGINT/SIGTERM; background sync work runs under it.
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container := di.NewContainer(appLogger)
	defer func() {
		if err := container.Close(); err != nil {
			appLogger.Error("Failed to close container", zap.Error(err))
		}
	}()

	initCtx, cancel := context.WithTimeout(runCtx, 30*time.Second)
	err = container.Initialize(initCtx, siteCfg, visitorCfg)
	cancel()
	if err != nil {
		appLogger.Fatalf("Failed to initialize modules: %v", err)
	}
	container.Start(runCtx)

	app := newApp(container, serverCfg, siteCfg, appLogger)
	addr := fmt.Sprintf("%s:%s", serverCfg.Host, serverCfg.Port)
	appLogger.Info("Starting HTTP server", zap.String("addr", addr),
		zap.String("local_medium", siteCfg.LocalMedium), zap.String("counter_store", container.Visitor.Store))

	listenErr := make(chan error, 1)
	go func() { listenErr <- app.Listen(addr) }()

	select {
	case err := <-listenErr:
		if err != nil {
			appLogger.Error("HTTP server failed", zap.Error(err))
		}
	case <-runCtx.Done():
		fmt.Println("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", zap.Error(err))
		}
	}
	stop()
	appLogger.Info("HTTP server stopped")
}

func newApp(container *di.Container, serverCfg *ServerConfig, siteCfg *siteconfig.SiteDataConfig, log logger.Logger) *fiber.App {
	site := container.SiteData
	app := fiber.New(fiber.Config{
		AppName:      "Portfolio Sync",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.WithContext(c.UserContext()).Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{"error": utils.StatusMessage(code)})
		},
	})

	app.Use(recover.New())
	app.Use(site.Middleware.CORS(serverCfg.AllowOrigins))
	app.Use(site.Middleware.RequestID())
	app.Use(site.Middleware.RequestContext())

	app.Get("/health", healthHandler(container, siteCfg, log))
	site.RegisterRoutes(app)
	container.Visitor.RegisterRoutes(app, site.Middleware.Visitor())
	return app
}

// healthHandler reports module health alongside the sync status. A degraded
// sync phase is not unhealthy; only failing module checks are.
func healthHandler(container *di.Container, siteCfg *siteconfig.SiteDataConfig, log logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()

		body := fiber.Map{
			"status":    "HEALTHY",
			"timestamp": time.Now().UTC(),
			"modules": fiber.Map{
				"sitedata": siteCfg.LocalMedium,
				"visitor":  container.Visitor.Store,
			},
			"sync": container.SiteData.Status(),
		}
		if err := container.HealthCheck(ctx); err != nil {
			log.Warn("Health check failed", zap.Error(err))
			body["status"] = "UNHEALTHY"
			body["error"] = err.Error()
			return c.Status(fiber.StatusServiceUnavailable).JSON(body)
		}
		return c.JSON(body)
	}
}
