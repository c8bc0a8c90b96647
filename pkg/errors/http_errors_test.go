package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHelpersWithAppError(t *testing.T) {
	err := NewTooManyRequestsError("RATE_LIMIT_EXCEEDED", "Too many requests")

	assert.Equal(t, http.StatusTooManyRequests, GetStatusCode(err))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", GetErrorCode(err))
	assert.Equal(t, "Too many requests", GetErrorMessage(err))
	assert.Same(t, err, FromError(err))
}

func TestErrorHelpersWithPlainError(t *testing.T) {
	err := errors.New("something broke")

	assert.Equal(t, http.StatusInternalServerError, GetStatusCode(err))
	assert.Equal(t, "UNKNOWN_ERROR", GetErrorCode(err))
	assert.Equal(t, "something broke", GetErrorMessage(err))

	wrapped := FromError(err)
	assert.Equal(t, http.StatusInternalServerError, wrapped.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", wrapped.Code)
}
