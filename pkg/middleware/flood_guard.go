package middleware

import (
	"sync"
	"time"

	"ai-chat-gateway/backend/pkg/errors"
	"ai-chat-gateway/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// FloodGuardOptions configures the flood guard
type FloodGuardOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
}

// DefaultFloodGuardOptions returns sensible defaults. The guard is an
// outer anti-abuse layer; limits sit well above the per-client chat
// admission ceiling so it only trips on outright floods.
func DefaultFloodGuardOptions() FloodGuardOptions {
	return FloodGuardOptions{
		Limit:          25,
		Burst:          50,
		ExpiryDuration: time.Hour, // Clean up limiter entries after 1 hour
		KeyFunc: func(c *gin.Context) string {
			// Default to client IP
			return c.ClientIP()
		},
	}
}

// client represents a flood guard client
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// FloodGuard implements per-IP flood protection middleware for Gin
type FloodGuard struct {
	mu      sync.Mutex
	options FloodGuardOptions
	clients map[string]*client
	logger  *logger.Logger
}

// NewFloodGuard creates a new flood guard
func NewFloodGuard(logger *logger.Logger, options ...FloodGuardOptions) *FloodGuard {
	opts := DefaultFloodGuardOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &FloodGuard{
		options: opts,
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// Middleware returns a Gin middleware for flood protection
func (g *FloodGuard) Middleware() gin.HandlerFunc {
	// Start cleanup goroutine
	go g.cleanup()

	return func(c *gin.Context) {
		// Get client key
		key := g.options.KeyFunc(c)

		// Get or create limiter for this client
		limiter := g.getLimiter(key)

		// Check if request is allowed
		if !limiter.Allow() {
			g.logger.Warn("Flood guard tripped",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Error(errors.NewTooManyRequestsError("FLOOD_GUARD", "Too many requests. Please try again later."))
			c.Header("Retry-After", "1")
			c.Abort()
			return
		}

		c.Next()
	}
}

// getLimiter returns a rate limiter for the given key
func (g *FloodGuard) getLimiter(key string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, exists := g.clients[key]
	if !exists {
		limiter := rate.NewLimiter(g.options.Limit, g.options.Burst)
		g.clients[key] = &client{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	// Update last seen
	v.lastSeen = time.Now()
	return v.limiter
}

// cleanup removes old entries from the clients map
func (g *FloodGuard) cleanup() {
	for {
		time.Sleep(time.Minute) // Check every minute

		g.mu.Lock()
		for k, v := range g.clients {
			if time.Since(v.lastSeen) > g.options.ExpiryDuration {
				delete(g.clients, k)
			}
		}
		g.mu.Unlock()
	}
}
