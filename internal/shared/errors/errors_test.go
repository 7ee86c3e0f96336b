package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Fields(t *testing.T) {
	err := NewValidationError("title is required").WithComponent("guestbook")
	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "guestbook", err.Component)
	assert.Equal(t, http.StatusBadRequest, err.HTTPCode)
	assert.Equal(t, "title is required", err.Error())
}

func TestAppError_CauseIsVisible(t *testing.T) {
	err := NewTransientRemoteError("pull failed").WithCause(ErrRemoteUnavailable)
	assert.Equal(t, ErrRemoteUnavailable, err.Unwrap())
	assert.ErrorIs(t, fmt.Errorf("reconcile: %w", err), ErrRemoteUnavailable)
	assert.Equal(t, "pull failed: remote store unavailable", err.Error())
	assert.Equal(t, "message not found", NewNotFoundError("message").Error())
}

func TestValidationErrors(t *testing.T) {
	ve := NewValidationErrors()
	assert.Nil(t, ve.ToAppError())

	ve.Add("author", "must be set", "").Add("body", "too long", nil)
	require.True(t, ve.HasErrors())
	appErr := ve.ToAppError()
	require.NotNil(t, appErr)
	assert.Equal(t, ErrorTypeValidation, appErr.Type)
	assert.Equal(t, "validation failed: must be set", appErr.Message)
	assert.Len(t, appErr.Details["fields"], 2)
}

func TestClassifiers(t *testing.T) {
	nf := NewNotFoundError("message")
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsValidation(nf))
	assert.False(t, IsAuthorization(nf))

	assert.True(t, IsAuthorization(NewAuthorizationError("admin only")))
	assert.True(t, IsConflict(NewConflictError("locked")))

	assert.True(t, IsValidation(fmt.Errorf("load: %w", ErrUnknownCollection)))
	assert.True(t, IsValidation(fmt.Errorf("decode: %w", ErrMalformedSnapshot)))
	assert.True(t, IsConflict(ErrReplyLocked))
	assert.True(t, IsNotFound(fmt.Errorf("reply: %w", ErrMessageNotFound)))
}

func TestClassifiers_AppErrorTypeWins(t *testing.T) {
	// The classification of the outer AppError decides, not its cause.
	err := NewInternalError("save failed").WithCause(ErrUnknownCollection)
	assert.False(t, IsValidation(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestIsTransientRemote(t *testing.T) {
	assert.True(t, IsTransientRemote(NewTransientRemoteError("pull timed out")))
	assert.True(t, IsTransientRemote(NewUnavailableError("no route")))
	assert.True(t, IsTransientRemote(fmt.Errorf("push: %w", ErrRemoteUnavailable)))
	assert.True(t, IsTransientRemote(ErrCounterUnavailable))
	assert.False(t, IsTransientRemote(NewMalformedLocalError("bad json")))
	assert.False(t, IsTransientRemote(NewInfrastructureError("disk full")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(NewConflictError("x")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrMessageNotFound))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrCollectionMismatch))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrRemoteUnavailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("boom")))
}
