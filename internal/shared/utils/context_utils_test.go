package utils

import (
	"context"
	"testing"

	"portfolio-sync/internal/shared/contextkeys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req1")
	ctx = WithVisitorID(ctx, "visitor1")
	ctx = WithOriginID(ctx, "origin1")
	ctx = WithCollection(ctx, "PROJECTS")
	ctx = WithOperation(ctx, "push")

	requestID, err := GetRequestIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "req1", requestID)

	visitorID, err := GetVisitorIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "visitor1", visitorID)

	assert.Equal(t, "origin1", ctx.Value(contextkeys.OriginIDKey))
	assert.Equal(t, "PROJECTS", ctx.Value(contextkeys.CollectionKey))
	assert.Equal(t, "push", ctx.Value(contextkeys.OperationKey))
}

func TestContextErrors(t *testing.T) {
	ctx := context.Background()
	_, err := GetRequestIDFromContext(ctx)
	assert.ErrorIs(t, err, ErrNotInContext)
	_, err = GetVisitorIDFromContext(ctx)
	assert.ErrorIs(t, err, ErrNotInContext)
	assert.Contains(t, err.Error(), "visitorID")

	ctx = context.WithValue(ctx, contextkeys.VisitorIDKey, 42)
	_, err = GetVisitorIDFromContext(ctx)
	assert.ErrorIs(t, err, ErrNotString)
}

func TestIsAdmin(t *testing.T) {
	assert.False(t, IsAdmin(context.Background()))
	assert.False(t, IsAdmin(WithAdminSubject(context.Background(), "")))
	assert.True(t, IsAdmin(WithAdminSubject(context.Background(), "owner")))
}
