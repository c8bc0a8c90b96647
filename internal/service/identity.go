package service

import (
	"strings"

	"ai-chat-gateway/backend/pkg/cache"
	"ai-chat-gateway/backend/pkg/jwt"
	"ai-chat-gateway/backend/pkg/logger"
)

// IdentityResolver turns an optional bearer credential into an optional
// stable user identity. Verification failure of any kind degrades to "no
// identity"; an invalid token is handled exactly like an anonymous request.
type IdentityResolver struct {
	jwtService *jwt.Service
	tokenCache *cache.Cache
	logger     *logger.Logger
}

// NewIdentityResolver creates a new identity resolver. tokenCache may be nil
// to disable memoization of verified tokens.
func NewIdentityResolver(jwtService *jwt.Service, tokenCache *cache.Cache, log *logger.Logger) *IdentityResolver {
	return &IdentityResolver{
		jwtService: jwtService,
		tokenCache: tokenCache,
		logger:     log,
	}
}

// Resolve extracts and verifies the bearer token from an Authorization
// header value. Returns nil when no identity could be established.
func (r *IdentityResolver) Resolve(authHeader string) *uint {
	if authHeader == "" {
		return nil
	}

	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return nil
	}

	if r.tokenCache != nil {
		if cached, found := r.tokenCache.Get(token); found {
			if userID, ok := cached.(uint); ok {
				return &userID
			}
		}
	}

	claims, err := r.jwtService.ValidateToken(token)
	if err != nil {
		r.logger.Debug("Bearer token rejected, treating request as anonymous", "error", err.Error())
		return nil
	}

	if r.tokenCache != nil {
		r.tokenCache.Set(token, claims.UserID)
	}

	userID := claims.UserID
	return &userID
}
