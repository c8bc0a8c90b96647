package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	apperrors "ai-chat-gateway/backend/pkg/errors"
	"ai-chat-gateway/backend/pkg/logger"
	"ai-chat-gateway/backend/pkg/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLimiter scripts the limiter outcome
type fakeLimiter struct {
	allowed bool
	err     error
	lastKey string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.lastKey = key
	return f.allowed, f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func uintPtr(v uint) *uint { return &v }

func TestClientKeyPriority(t *testing.T) {
	a := NewAdmissionController(&fakeLimiter{allowed: true}, 12, 40, testLogger())

	tests := []struct {
		name     string
		userID   *uint
		guestID  string
		clientIP string
		want     string
	}{
		{"user wins over everything", uintPtr(7), "g-123", "10.0.0.1", "user:7"},
		{"guest wins over ip", nil, "g-123", "10.0.0.1", "guest:g-123"},
		{"ip when nothing else", nil, "", "10.0.0.1", "ip:10.0.0.1"},
		{"shared bucket as last resort", nil, "", "", "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.ClientKey(tt.userID, tt.guestID, tt.clientIP))
		})
	}
}

func TestMaxMessagesByTier(t *testing.T) {
	a := NewAdmissionController(&fakeLimiter{allowed: true}, 12, 40, testLogger())

	assert.Equal(t, 12, a.MaxMessages(nil))
	assert.Equal(t, 40, a.MaxMessages(uintPtr(1)))
}

func TestAdmitRateLimited(t *testing.T) {
	a := NewAdmissionController(&fakeLimiter{allowed: false}, 12, 40, testLogger())

	err := a.Admit(context.Background(), "user:7", uintPtr(7), 3)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 429, appErr.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", appErr.Code)
}

func TestAdmitFailsOpenOnLimiterError(t *testing.T) {
	limiter := &fakeLimiter{allowed: false, err: errors.New("redis down")}
	a := NewAdmissionController(limiter, 12, 40, testLogger())

	err := a.Admit(context.Background(), "guest:g-1", nil, 3)
	assert.NoError(t, err, "a broken counter store must not block requests")
}

func TestAdmitGuestOverCap(t *testing.T) {
	a := NewAdmissionController(&fakeLimiter{allowed: true}, 12, 40, testLogger())

	err := a.Admit(context.Background(), "guest:g-1", nil, 13)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 403, appErr.StatusCode)
	assert.Equal(t, "GUEST_HISTORY_LIMIT", appErr.Code)
}

func TestAdmitGuestAtCap(t *testing.T) {
	a := NewAdmissionController(&fakeLimiter{allowed: true}, 12, 40, testLogger())

	assert.NoError(t, a.Admit(context.Background(), "guest:g-1", nil, 12))
}

func TestAdmitAuthenticatedNeverRejectedForHistory(t *testing.T) {
	a := NewAdmissionController(&fakeLimiter{allowed: true}, 12, 40, testLogger())

	// Long authenticated histories are truncated downstream, not denied
	assert.NoError(t, a.Admit(context.Background(), "user:7", uintPtr(7), 500))
}

func TestAdmitUsesRealLimiter(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterOptions{
		Window:  60 * time.Second,
		Max:     2,
		MaxKeys: 10,
	})
	a := NewAdmissionController(limiter, 12, 40, testLogger())
	ctx := context.Background()

	require.NoError(t, a.Admit(ctx, "ip:10.0.0.1", nil, 1))
	require.NoError(t, a.Admit(ctx, "ip:10.0.0.1", nil, 1))
	err := a.Admit(ctx, "ip:10.0.0.1", nil, 1)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 429, appErr.StatusCode)
}
