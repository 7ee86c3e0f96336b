// Package http exposes the site data over REST and a websocket change feed.
package http

import (
	"errors"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/shared/utils"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/usecase"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// maxSnapshotBody bounds a PUT body.
const maxSnapshotBody = 4 << 20

// SiteDataHandler serves the collections, the guestbook and the sync
// status.
type SiteDataHandler struct {
	store      *usecase.EntityStore
	guestbook  *usecase.Guestbook
	reconciler *usecase.CloudReconciler
	logger     logger.Logger
}

// NewSiteDataHandler creates the REST handler.
func NewSiteDataHandler(store *usecase.EntityStore, guestbook *usecase.Guestbook, reconciler *usecase.CloudReconciler, log logger.Logger) *SiteDataHandler {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &SiteDataHandler{
		store:      store,
		guestbook:  guestbook,
		reconciler: reconciler,
		logger:     log.WithComponent("sitedata-http"),
	}
}

// RegisterRoutes mounts the REST routes under router.
func (h *SiteDataHandler) RegisterRoutes(router fiber.Router, mw *Middleware) {
	api := router.Group("/api/v1", mw.Visitor(), mw.DetectAdmin())

	api.Get("/collections/:key", h.GetCollection)
	api.Put("/collections/:key", mw.RequireAdmin(), h.PutCollection)

	api.Get("/messages", h.ListMessages)
	api.Post("/messages", h.PostMessage)
	api.Post("/messages/:id/reply", mw.RequireAdmin(), h.ReplyMessage)
	api.Delete("/messages/:id", mw.RequireAdmin(), h.DeleteMessage)

	api.Get("/sync/status", h.SyncStatus)
}

// GetCollection returns one collection in display order.
func (h *SiteDataHandler) GetCollection(c *fiber.Ctx) error {
	key, err := model.ParseCollectionKey(c.Params("key"))
	if err != nil {
		return h.fail(c, err)
	}
	ctx := utils.WithCollection(c.UserContext(), string(key))

	if key == model.KeyMessages {
		msgs, err := h.guestbook.List(ctx, h.viewer(c))
		if err != nil {
			return h.fail(c, err)
		}
		return c.JSON(msgs)
	}
	return c.JSON(model.Sorted(h.store.Load(ctx, key)))
}

// PutCollection replaces a whole collection.
func (h *SiteDataHandler) PutCollection(c *fiber.Ctx) error {
	key, err := model.ParseCollectionKey(c.Params("key"))
	if err != nil {
		return h.fail(c, err)
	}
	body := c.Body()
	if len(body) > maxSnapshotBody {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error":   "payload_too_large",
			"message": "snapshot body is too large",
		})
	}
	snap, err := model.DecodeInput(key, body)
	if err != nil {
		return h.fail(c, err)
	}

	ctx := utils.WithCollection(c.UserContext(), string(key))
	if err := h.store.Save(ctx, key, snap); err != nil {
		return h.fail(c, err)
	}
	h.logger.WithContext(ctx).Info("Collection replaced", zap.Int("records", snap.Len()))
	return c.JSON(model.Sorted(h.store.Load(ctx, key)))
}

// ListMessages returns the guestbook, masked for the caller.
func (h *SiteDataHandler) ListMessages(c *fiber.Ctx) error {
	msgs, err := h.guestbook.List(c.UserContext(), h.viewer(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(msgs)
}

// PostMessage adds a guestbook entry for the calling visitor.
func (h *SiteDataHandler) PostMessage(c *fiber.Ctx) error {
	var in usecase.PostMessageInput
	if err := c.BodyParser(&in); err != nil {
		return h.fail(c, sharederrors.NewValidationError("invalid message body").WithCause(err))
	}
	in.VisitorID = visitorID(c)

	msg, err := h.guestbook.Post(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// ReplyMessage sets the owner's reply.
func (h *SiteDataHandler) ReplyMessage(c *fiber.Ctx) error {
	var in usecase.ReplyInput
	if err := c.BodyParser(&in); err != nil {
		return h.fail(c, sharederrors.NewValidationError("invalid reply body").WithCause(err))
	}
	msg, err := h.guestbook.Reply(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage removes a guestbook entry.
func (h *SiteDataHandler) DeleteMessage(c *fiber.Ctx) error {
	if err := h.guestbook.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SyncStatus reports the reconciler state.
func (h *SiteDataHandler) SyncStatus(c *fiber.Ctx) error {
	return c.JSON(h.reconciler.Status())
}

func (h *SiteDataHandler) viewer(c *fiber.Ctx) usecase.Viewer {
	return usecase.Viewer{VisitorID: visitorID(c), Admin: utils.IsAdmin(c.UserContext())}
}

func (h *SiteDataHandler) fail(c *fiber.Ctx, err error) error {
	status := sharederrors.HTTPStatus(err)
	code := "internal_error"
	message := err.Error()

	var appErr *sharederrors.AppError
	switch {
	case errors.As(err, &appErr):
		code = string(appErr.Type)
		message = appErr.Message
	case errors.Is(err, sharederrors.ErrUnknownCollection):
		status = fiber.StatusNotFound
		code = "unknown_collection"
	}
	if status >= fiber.StatusInternalServerError {
		h.logger.WithContext(c.UserContext()).Error("Request failed",
			zap.String("path", c.Path()), zap.Error(err))
		message = "internal error"
	}

	resp := fiber.Map{"error": code, "message": message}
	if id, err := utils.GetRequestIDFromContext(c.UserContext()); err == nil && status >= fiber.StatusInternalServerError {
		resp["request_id"] = id
	}
	if appErr != nil && len(appErr.Details) > 0 {
		resp["details"] = appErr.Details
	}
	return c.Status(status).JSON(resp)
}
