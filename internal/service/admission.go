package service

import (
	"context"
	"strconv"

	"ai-chat-gateway/backend/pkg/errors"
	"ai-chat-gateway/backend/pkg/logger"
	"ai-chat-gateway/backend/pkg/ratelimit"
)

// AdmissionController applies the two per-request admission checks: the
// per-client rate limit and the tier-based message-count cap.
type AdmissionController struct {
	limiter  ratelimit.Limiter
	guestMax int
	userMax  int
	logger   *logger.Logger
}

// NewAdmissionController creates an admission controller around the given limiter
func NewAdmissionController(limiter ratelimit.Limiter, guestMax, userMax int, log *logger.Logger) *AdmissionController {
	return &AdmissionController{
		limiter:  limiter,
		guestMax: guestMax,
		userMax:  userMax,
		logger:   log,
	}
}

// ClientKey derives the rate-limit key for a request. First present wins:
// user id, then guest id, then the request's network address, then a shared
// anonymous bucket.
func (a *AdmissionController) ClientKey(userID *uint, guestID, clientIP string) string {
	switch {
	case userID != nil:
		return "user:" + strconv.FormatUint(uint64(*userID), 10)
	case guestID != "":
		return "guest:" + guestID
	case clientIP != "":
		return "ip:" + clientIP
	default:
		return "anonymous"
	}
}

// MaxMessages returns the history ceiling for the request's tier. The same
// ceiling drives both guest admission and later context-window truncation.
func (a *AdmissionController) MaxMessages(userID *uint) int {
	if userID != nil {
		return a.userMax
	}
	return a.guestMax
}

// Admit runs both checks in order. A limiter backend error admits the
// request (fail-open): admission must not turn the counter store into a hard
// dependency.
func (a *AdmissionController) Admit(ctx context.Context, key string, userID *uint, historyLen int) error {
	allowed, err := a.limiter.Allow(ctx, key)
	if err != nil {
		a.logger.LogError(err, "Rate limiter unavailable, admitting request", "client", key)
	} else if !allowed {
		a.logger.Warn("Rate limit exceeded", "client", key)
		return errors.NewTooManyRequestsError("RATE_LIMIT_EXCEEDED",
			"Too many requests. Please wait a moment and try again.")
	}

	// Guests over the cap are denied outright; authenticated histories are
	// truncated later instead of rejected.
	if userID == nil && historyLen > a.guestMax {
		a.logger.Warn("Guest history over cap", "client", key, "history", historyLen)
		return errors.NewForbiddenError("GUEST_HISTORY_LIMIT",
			"Conversation too long for guest access. Please sign in to continue.")
	}

	return nil
}
