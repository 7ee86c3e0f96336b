package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKey_String(t *testing.T) {
	key := contextKey("testKey")
	assert.Equal(t, "portfolio-sync context key testKey", key.String())
}

func TestContextKeys_Usage(t *testing.T) {
	ctx := context.Background()
	ctx = context.WithValue(ctx, RequestIDKey, "req-456")
	ctx = context.WithValue(ctx, OriginIDKey, "origin-1")
	ctx = context.WithValue(ctx, CollectionKey, "PROJECTS")
	ctx = context.WithValue(ctx, VisitorIDKey, "visitor-9")
	ctx = context.WithValue(ctx, AdminSubjectKey, "owner")
	ctx = context.WithValue(ctx, OperationKey, "operation-save")

	assert.Equal(t, "req-456", ctx.Value(RequestIDKey))
	assert.Equal(t, "origin-1", ctx.Value(OriginIDKey))
	assert.Equal(t, "PROJECTS", ctx.Value(CollectionKey))
	assert.Equal(t, "visitor-9", ctx.Value(VisitorIDKey))
	assert.Equal(t, "owner", ctx.Value(AdminSubjectKey))
	assert.Equal(t, "operation-save", ctx.Value(OperationKey))
}
