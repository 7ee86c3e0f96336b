package utils

import (
	"context"
	"errors"
	"fmt"

	"portfolio-sync/internal/shared/contextkeys"
)

var (
	ErrNotInContext = errors.New("value not found in context")
	ErrNotString    = errors.New("context value is not a string")
)

func stringValue(ctx context.Context, key fmt.Stringer) (string, error) {
	val := ctx.Value(key)
	if val == nil {
		return "", fmt.Errorf("%s: %w", key, ErrNotInContext)
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrNotString)
	}
	return s, nil
}

// GetRequestIDFromContext returns the id assigned by the request middleware.
func GetRequestIDFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.RequestIDKey)
}

// GetVisitorIDFromContext returns the anonymous visitor id of the caller.
func GetVisitorIDFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.VisitorIDKey)
}

// IsAdmin reports whether the context carries a verified admin subject.
func IsAdmin(ctx context.Context) bool {
	subject, err := stringValue(ctx, contextkeys.AdminSubjectKey)
	return err == nil && subject != ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextkeys.RequestIDKey, requestID)
}

func WithVisitorID(ctx context.Context, visitorID string) context.Context {
	return context.WithValue(ctx, contextkeys.VisitorIDKey, visitorID)
}

// WithAdminSubject must only be called after the admin token was verified.
func WithAdminSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextkeys.AdminSubjectKey, subject)
}

// WithOriginID tags ctx with the process a change came from.
func WithOriginID(ctx context.Context, originID string) context.Context {
	return context.WithValue(ctx, contextkeys.OriginIDKey, originID)
}

func WithCollection(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, contextkeys.CollectionKey, key)
}

func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, contextkeys.OperationKey, operation)
}
