package http

import (
	"strings"
	"time"

	"portfolio-sync/internal/shared/contextkeys"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/shared/utils"
	"portfolio-sync/internal/sitedata/adapter/security"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Header and cookie names used by browser clients.
const (
	VisitorHeader    = "X-Visitor-ID"
	VisitorCookie    = "visitor_id"
	AdminCookie      = "admin_token"
	visitorLocalKey  = "visitorID"
	visitorCookieTTL = 365 * 24 * time.Hour
)

// Middleware holds the request middleware shared by the site routes.
type Middleware struct {
	tokens *security.AdminTokenService
	logger logger.Logger
}

// NewMiddleware creates the middleware set.
func NewMiddleware(tokens *security.AdminTokenService, log logger.Logger) *Middleware {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Middleware{tokens: tokens, logger: log.WithComponent("http-middleware")}
}

// CORS allows browser tabs on other origins to call the API.
func (m *Middleware) CORS(allowOrigins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Visitor-ID,X-Request-ID",
		AllowCredentials: allowOrigins != "*",
		MaxAge:           86400,
	})
}

// RequestID assigns a request id, echoed in the X-Request-ID header.
func (m *Middleware) RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		Generator:  uuid.NewString,
		ContextKey: string(contextkeys.RequestIDKey),
	})
}

// RequestContext copies the request id into the user context so use case
// logs carry it.
func (m *Middleware) RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals(string(contextkeys.RequestIDKey)).(string); ok && id != "" {
			c.SetUserContext(utils.WithRequestID(c.UserContext(), id))
		}
		return c.Next()
	}
}

// Visitor identifies the anonymous caller by header or cookie, issuing a new
// cookie when neither is present.
func (m *Middleware) Visitor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(VisitorHeader))
		if id == "" {
			id = strings.TrimSpace(c.Cookies(VisitorCookie))
		}
		if id == "" {
			id = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     VisitorCookie,
				Value:    id,
				Path:     "/",
				Expires:  time.Now().Add(visitorCookieTTL),
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}
		c.Locals(visitorLocalKey, id)
		c.SetUserContext(utils.WithVisitorID(c.UserContext(), id))
		return c.Next()
	}
}

// DetectAdmin marks the request as admin when it carries a valid admin
// token, and otherwise lets it through unchanged.
func (m *Middleware) DetectAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractToken(c)
		if token == "" {
			return c.Next()
		}
		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			m.logger.Debug("Ignoring invalid admin token", zap.String("path", c.Path()), zap.Error(err))
			return c.Next()
		}
		c.SetUserContext(utils.WithAdminSubject(c.UserContext(), claims.Subject))
		return c.Next()
	}
}

// RequireAdmin rejects requests without a valid admin token.
func (m *Middleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if utils.IsAdmin(c.UserContext()) {
			return c.Next()
		}
		token := extractToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "authentication_required",
				"message": "Admin token required",
			})
		}
		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			status := fiber.StatusUnauthorized
			if err == security.ErrNotAdmin {
				status = fiber.StatusForbidden
			}
			m.logger.Warn("Rejected admin request", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(status).JSON(fiber.Map{
				"error":   "invalid_token",
				"message": err.Error(),
			})
		}
		c.SetUserContext(utils.WithAdminSubject(c.UserContext(), claims.Subject))
		return c.Next()
	}
}

func extractToken(c *fiber.Ctx) string {
	if auth := c.Get(fiber.HeaderAuthorization); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
			return strings.TrimSpace(auth[7:])
		}
		return ""
	}
	return c.Cookies(AdminCookie)
}

func visitorID(c *fiber.Ctx) string {
	if id, ok := c.Locals(visitorLocalKey).(string); ok {
		return id
	}
	return ""
}
