package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// JWT configuration
	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Chat admission configuration
	Chat struct {
		RateLimitWindow  time.Duration // length of one rate-limit window
		RateLimitMax     int           // requests allowed per window per client key
		GuestMaxMessages int           // history ceiling for guest requests
		UserMaxMessages  int           // history ceiling for authenticated requests
		TitleMaxLen      int           // prefix of the first user turn kept as conversation title
		MaxTrackedKeys   int           // upper bound on in-memory rate-limit entries
		RedisURL         string        // when set, rate limiting is backed by Redis
	}

	// LLM provider configuration
	LLM struct {
		APIKey       string
		Model        string
		BaseURL      string
		SystemPrompt string
	}

	// Security configuration
	Security struct {
		FloodLimit     float64
		FloodBurst     int
		AllowedOrigins []string
		TrustedProxies []string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Cache settings
	Cache struct {
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "8081")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
		instance.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+instance.Server.Port)

		// Database config
		instance.Database.Host = getEnvString("DB_HOST", "localhost")
		instance.Database.Port = getEnvString("DB_PORT", "5432")
		instance.Database.User = getEnvString("DB_USER", "postgres")
		instance.Database.Password = getEnvString("DB_PASSWORD", "postgres")
		instance.Database.Name = getEnvString("DB_NAME", "chat-gateway")
		instance.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
		instance.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
		instance.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

		// JWT config
		instance.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
		instance.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

		// Chat admission config
		instance.Chat.RateLimitWindow = getEnvDuration("CHAT_RATE_WINDOW", 60*time.Second)
		instance.Chat.RateLimitMax = getEnvInt("CHAT_RATE_MAX", 20)
		instance.Chat.GuestMaxMessages = getEnvInt("CHAT_GUEST_MAX_MESSAGES", 12)
		instance.Chat.UserMaxMessages = getEnvInt("CHAT_USER_MAX_MESSAGES", 40)
		instance.Chat.TitleMaxLen = getEnvInt("CHAT_TITLE_MAX_LEN", 80)
		instance.Chat.MaxTrackedKeys = getEnvInt("CHAT_MAX_TRACKED_KEYS", 10000)
		instance.Chat.RedisURL = getEnvString("REDIS_URL", "")

		// LLM provider config
		instance.LLM.APIKey = getEnvString("OPENAI_API_KEY", "")
		instance.LLM.Model = getEnvString("OPENAI_MODEL", "")
		instance.LLM.BaseURL = getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1")
		instance.LLM.SystemPrompt = getEnvString("CHAT_SYSTEM_PROMPT",
			"You are a helpful assistant. Answer clearly and concisely.")

		// Security config
		instance.Security.FloodLimit = float64(getEnvInt("FLOOD_LIMIT", 25))
		instance.Security.FloodBurst = getEnvInt("FLOOD_BURST", 50)
		instance.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
		instance.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")

		// Cache settings
		instance.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
		instance.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
		instance.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
