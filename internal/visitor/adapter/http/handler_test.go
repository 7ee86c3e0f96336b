package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/shared/retry"
	sitehttp "portfolio-sync/internal/sitedata/adapter/http"
	visitorhttp "portfolio-sync/internal/visitor/adapter/http"
	"portfolio-sync/internal/visitor/adapter/persistence/memory"
	"portfolio-sync/internal/visitor/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countBody struct {
	Success   bool       `json:"success"`
	Count     int64      `json:"count"`
	StartDate *time.Time `json:"startDate"`
}

func newApp(t *testing.T, c *memory.Counter) *fiber.App {
	t.Helper()
	svc := usecase.NewCounterService(usecase.Backends{
		Reader:   c,
		Atomic:   c.Atomic(),
		Fallback: c.Fallback(),
		Prober:   c,
		Gate:     memory.NewGate(),
	}, usecase.Options{
		Retry:    retry.Policy{MaxAttempts: 1, Timeout: 100 * time.Millisecond},
		DedupTTL: time.Hour,
	}, nil, logger.NewNoopLogger())

	app := fiber.New()
	mw := sitehttp.NewMiddleware(nil, logger.NewNoopLogger())
	visitorhttp.NewCounterHandler(svc, logger.NewNoopLogger()).RegisterRoutes(app, mw.Visitor())
	return app
}

func call(t *testing.T, app *fiber.App, method, visitor string) (int, countBody, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, "/api/visitor-count", nil)
	if visitor != "" {
		req.Header.Set(sitehttp.VisitorHeader, visitor)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body countBody
	require.NoError(t, json.Unmarshal(raw, &body))
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	return resp.StatusCode, body, fields
}

func TestVisitorCount_GetDoesNotIncrement(t *testing.T) {
	c := memory.NewCounter()
	c.Seed(7, nil)
	app := newApp(t, c)

	status, body, fields := call(t, app, http.MethodGet, "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
	assert.EqualValues(t, 7, body.Count)
	assert.Contains(t, fields, "startDate")
	assert.NotContains(t, fields, "Path")

	_, body, _ = call(t, app, http.MethodGet, "")
	assert.EqualValues(t, 7, body.Count)
}

func TestVisitorCount_PostCountsOncePerVisitor(t *testing.T) {
	app := newApp(t, memory.NewCounter())

	_, first, _ := call(t, app, http.MethodPost, "alice")
	assert.True(t, first.Success)
	assert.EqualValues(t, 1, first.Count)
	require.NotNil(t, first.StartDate)

	_, again, _ := call(t, app, http.MethodPost, "alice")
	assert.EqualValues(t, 1, again.Count)

	_, other, _ := call(t, app, http.MethodPost, "bob")
	assert.EqualValues(t, 2, other.Count)
	assert.True(t, first.StartDate.Equal(*other.StartDate))
}

func TestVisitorCount_BackendDownStill200(t *testing.T) {
	c := memory.NewCounter()
	app := newApp(t, c)

	_, ok, _ := call(t, app, http.MethodPost, "alice")
	require.EqualValues(t, 1, ok.Count)

	c.SetFailing(true)
	status, body, _ := call(t, app, http.MethodPost, "bob")
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, body.Success)
	assert.EqualValues(t, 1, body.Count)

	status, body, _ = call(t, app, http.MethodGet, "")
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, body.Success)
	assert.EqualValues(t, 1, body.Count)
}
