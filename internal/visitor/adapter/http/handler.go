// Package http serves the visitor count.
package http

import (
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/shared/utils"
	"portfolio-sync/internal/visitor/usecase"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CounterHandler answers the visitor count endpoints. Both endpoints
// respond 200 even when the backend is down; the body's success flag says
// whether the count is fresh.
type CounterHandler struct {
	counter *usecase.CounterService
	logger  logger.Logger
}

// NewCounterHandler creates the handler.
func NewCounterHandler(counter *usecase.CounterService, log logger.Logger) *CounterHandler {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &CounterHandler{counter: counter, logger: log.WithComponent("visitor-http")}
}

// RegisterRoutes mounts the counter routes. mws run before both handlers;
// the visitor-id middleware belongs there so POST can dedup.
func (h *CounterHandler) RegisterRoutes(router fiber.Router, mws ...fiber.Handler) {
	handlers := func(last fiber.Handler) []fiber.Handler {
		out := make([]fiber.Handler, 0, len(mws)+1)
		out = append(out, mws...)
		return append(out, last)
	}
	router.Get("/api/visitor-count", handlers(h.GetCount)...)
	router.Post("/api/visitor-count", handlers(h.CountVisit)...)
}

// GetCount returns the count without incrementing it.
func (h *CounterHandler) GetCount(c *fiber.Ctx) error {
	res := h.counter.Read(c.UserContext())
	return c.Status(fiber.StatusOK).JSON(res)
}

// CountVisit counts the caller once per dedup window and returns the count.
func (h *CounterHandler) CountVisit(c *fiber.Ctx) error {
	ctx := c.UserContext()
	visitorID, err := utils.GetVisitorIDFromContext(ctx)
	if err != nil {
		h.logger.WithContext(ctx).Debug("Counting anonymous visit", zap.Error(err))
		visitorID = ""
	}
	res := h.counter.CountVisit(ctx, visitorID)
	if !res.Success {
		h.logger.WithContext(ctx).Warn("Serving stale visitor count", zap.Int64("count", res.Count))
	}
	return c.Status(fiber.StatusOK).JSON(res)
}
