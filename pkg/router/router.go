package router

import (
	"time"

	"ai-chat-gateway/backend/internal/api"
	"ai-chat-gateway/backend/pkg/config"
	"ai-chat-gateway/backend/pkg/di"
	"ai-chat-gateway/backend/pkg/errors"
	"ai-chat-gateway/backend/pkg/logger"
	"ai-chat-gateway/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Track server start time for uptime calculations
var startTime = time.Now()

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	// Use the container's logger
	logger.SetGlobal(container.Logger)

	cfg := container.Config

	// Configure Gin mode based on environment
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(container.Logger))

	// Add custom error handler middleware
	engine.Use(errors.ErrorHandler())

	// Add custom recovery middleware with structured logging instead of default
	engine.Use(errors.RecoveryWithLogger())

	// Attach a request ID to every request for log correlation
	engine.Use(middleware.RequestIDMiddleware())

	// Outer per-IP flood guard. The per-client chat ceiling is enforced
	// inside the turn pipeline; this layer only trips on outright floods.
	floodGuard := middleware.NewFloodGuard(container.Logger, middleware.FloodGuardOptions{
		Limit:          rate.Limit(cfg.Security.FloodLimit),
		Burst:          cfg.Security.FloodBurst,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
	engine.Use(floodGuard.Middleware())

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	// Add CORS middleware
	r.Engine.Use(corsMiddleware())

	// Initialize handlers
	chatHandler := api.NewChatHandler(r.Container.ChatService, r.Logger)
	authHandler := api.NewAuthHandler(r.Container.UserService, r.Container.JWTService, r.Logger)
	conversationHandler := api.NewConversationHandler(
		r.Container.Conversations,
		r.Container.Messages,
		r.Logger,
	)

	// API version 1 routes
	v1 := r.Engine.Group("/api/v1")

	chatHandler.RegisterRoutesV1(v1)
	authHandler.RegisterRoutesV1(v1)
	conversationHandler.RegisterRoutesV1(v1)

	// Health and metrics sit outside the versioned group
	r.setupHealthRoutes()
	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// corsMiddleware allows browser clients to reach the API directly
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, X-CSRF-Token, Authorization, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
