package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"portfolio-sync/internal/shared/contextkeys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoggerInterface_Contract(t *testing.T) {
	var _ Logger = NewLogger()
	var _ Logger = NewLoggerWithOutput("info", "json", &bytes.Buffer{})
	var _ Logger = NewNoopLogger()
}

func TestLogrusLogger_WithFieldsAndContext(t *testing.T) {
	logger := NewLogger()
	logger2 := logger.WithFields(map[string]interface{}{"foo": "bar"})
	assert.NotNil(t, logger2)
	ctx := context.Background()
	ctx = context.WithValue(ctx, contextkeys.OriginIDKey, "origin-1")
	logger3 := logger.WithContext(ctx)
	assert.NotNil(t, logger3)
}

func TestLogrusLogger_ZapFieldsBecomeStructured(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOutput("debug", "json", &buf)

	log.Info("collection saved", zap.String("key", "PROJECTS"), zap.Int("records", 6), zap.Error(errors.New("boom")))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "collection saved", line["msg"])
	assert.Equal(t, "PROJECTS", line["key"])
	assert.Equal(t, float64(6), line["records"])
	assert.Equal(t, "boom", line["error"])
}

func TestLogrusLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOutput("info", "json", &buf)
	ctx := context.WithValue(context.Background(), contextkeys.CollectionKey, "MESSAGES")

	log.WithContext(ctx).WithComponent("entity-store").Info("loaded")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "MESSAGES", line["collection"])
	assert.Equal(t, "entity-store", line["component"])
}

func TestLogrusLogger_PlainArgsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOutput("warn", "json", &buf)

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("retry ", 3)
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "retry 3", line["msg"])
	assert.Equal(t, "warning", line["level"])
}

func TestNewLoggerWithOutput_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOutput("loud", "text", &buf)

	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
