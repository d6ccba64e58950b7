package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is only fit for local development
const DefaultJWTSecret = "agentkpi-dev-secret"

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// Data pipeline
	DataDir            string
	HeaderSynonymsFile string
	WatchData          bool
	WatchDebounce      time.Duration

	// Auth
	JWTSecret  string
	TokenTTL   time.Duration
	SkipAuth   bool
	OIDCIssuer string

	FAQDBPath string

	// WebSocket
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigins:     strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DataDir:            getEnv("DATA_DIR", "data"),
		HeaderSynonymsFile: getEnv("HEADER_SYNONYMS_FILE", ""),
		JWTSecret:          getEnv("JWT_SECRET", DefaultJWTSecret),
		SkipAuth:           getEnv("SKIP_AUTH", "false") == "true",
		OIDCIssuer:         getEnv("OIDC_ISSUER", ""),
		FAQDBPath:          getEnv("FAQ_DB_PATH", "faq.db"),
	}

	watch, err := strconv.ParseBool(getEnv("WATCH_DATA", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid WATCH_DATA: %w", err)
	}
	config.WatchData = watch

	if config.WatchDebounce, err = time.ParseDuration(getEnv("WATCH_DEBOUNCE", "500ms")); err != nil {
		return nil, fmt.Errorf("invalid WATCH_DEBOUNCE: %w", err)
	}
	if config.TokenTTL, err = time.ParseDuration(getEnv("TOKEN_TTL", "8h")); err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	if config.TokenTTL <= 0 {
		return nil, fmt.Errorf("invalid TOKEN_TTL: must be positive")
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// OriginAllowed reports whether origin is one of the allowed origins
func (c *Config) OriginAllowed(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
