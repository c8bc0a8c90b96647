package di

import (
	"context"

	"ai-chat-gateway/backend/ai"
	"ai-chat-gateway/backend/internal/repository"
	"ai-chat-gateway/backend/internal/service"
	"ai-chat-gateway/backend/pkg/cache"
	"ai-chat-gateway/backend/pkg/config"
	"ai-chat-gateway/backend/pkg/jwt"
	"ai-chat-gateway/backend/pkg/logger"
	"ai-chat-gateway/backend/pkg/ratelimit"
	"ai-chat-gateway/backend/pkg/secrets"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB               *gorm.DB
	Logger           *logger.Logger
	Config           *config.Config
	JWTService       *jwt.Service
	UserService      *service.UserService
	IdentityResolver *service.IdentityResolver
	Limiter          ratelimit.Limiter
	Admission        *service.AdmissionController
	Conversations    repository.ConversationRepository
	Messages         repository.MessageRepository
	Invocations      repository.InvocationRepository
	Recorder         *service.InvocationRecorder
	LLMClient        *ai.Client
	ChatService      *service.ChatService
}

// New creates a new dependency injection container. The rate limiter and
// the mutable admission state live here, constructed once per process and
// injected into the pipeline.
func New(db *gorm.DB, cfg *config.Config, log *logger.Logger) (*Container, error) {
	// Initialize JWT service
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Initialize secrets manager; with Vault disabled it reads the environment
	if err := secrets.Init(log); err != nil {
		log.LogError(err, "Failed to initialize secrets manager, using config values")
	}
	apiKey := secrets.GetSecretWithDefault(context.Background(), "openai_api_key", cfg.LLM.APIKey)

	// Initialize repositories
	conversations := repository.NewGormConversationRepository(db)
	messages := repository.NewGormMessageRepository(db)
	invocations := repository.NewGormInvocationRepository(db)

	// Initialize the rate limiter; Redis-backed when configured so scaled
	// deployments share one ceiling
	var limiter ratelimit.Limiter
	if cfg.Chat.RedisURL != "" {
		limiter = ratelimit.NewRedisLimiter(cfg.Chat.RedisURL, cfg.Chat.RateLimitWindow, cfg.Chat.RateLimitMax)
		log.Info("Rate limiting backed by Redis", "addr", cfg.Chat.RedisURL)
	} else {
		limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterOptions{
			Window:        cfg.Chat.RateLimitWindow,
			Max:           cfg.Chat.RateLimitMax,
			MaxKeys:       cfg.Chat.MaxTrackedKeys,
			SweepInterval: cfg.Chat.RateLimitWindow,
		})
	}

	// Initialize pipeline components
	tokenCache := cache.NewCache(cfg.Cache.TTL, cfg.Cache.PurgeWindow, cfg.Cache.MaxSize)
	identityResolver := service.NewIdentityResolver(jwtService, tokenCache, log)
	admission := service.NewAdmissionController(limiter, cfg.Chat.GuestMaxMessages, cfg.Chat.UserMaxMessages, log)
	recorder := service.NewInvocationRecorder(invocations, log)
	llmClient := ai.NewClient(apiKey, cfg.LLM.Model, cfg.LLM.BaseURL)

	if !llmClient.Configured() {
		log.Warn("LLM provider is not fully configured; chat requests will fail",
			"has_key", apiKey != "",
			"has_model", cfg.LLM.Model != "",
		)
	}

	chatService := service.NewChatService(
		identityResolver,
		admission,
		conversations,
		messages,
		recorder,
		llmClient,
		cfg.LLM.SystemPrompt,
		cfg.Chat.TitleMaxLen,
		log,
	)

	userService := service.NewUserService(db, jwtService)

	return &Container{
		DB:               db,
		Logger:           log,
		Config:           cfg,
		JWTService:       jwtService,
		UserService:      userService,
		IdentityResolver: identityResolver,
		Limiter:          limiter,
		Admission:        admission,
		Conversations:    conversations,
		Messages:         messages,
		Invocations:      invocations,
		Recorder:         recorder,
		LLMClient:        llmClient,
		ChatService:      chatService,
	}, nil
}
