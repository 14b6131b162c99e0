// Package config provides environment-aware configuration management
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is loaded once at startup
// and treated as read-only afterwards.
type Config struct {
	// HTTP
	ListenAddr string

	// Database
	DatabaseURL string

	// Tokens
	JWTSecretKey         string
	JWTAlgorithm         string
	JWTExpirationMinutes int

	// API keys
	APIKeyPrefix          string
	KeyRotationGraceHours int

	// Rate limiting
	RateLimitAuthPerMinute int
	RateLimitAPIPerMinute  int

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, optionally seeded from a
// .env file in the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr:             getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTSecretKey:           getEnv("JWT_SECRET_KEY", "change-me-in-production-use-a-random-256-bit-key"),
		JWTAlgorithm:           getEnv("JWT_ALGORITHM", "HS256"),
		JWTExpirationMinutes:   getEnvInt("JWT_EXPIRATION_MINUTES", 30),
		APIKeyPrefix:           getEnv("API_KEY_PREFIX", "aims_"),
		KeyRotationGraceHours:  getEnvInt("KEY_ROTATION_GRACE_HOURS", 24),
		RateLimitAuthPerMinute: getEnvInt("RATE_LIMIT_AUTH_PER_MINUTE", 20),
		RateLimitAPIPerMinute:  getEnvInt("RATE_LIMIT_API_PER_MINUTE", 60),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for obviously broken values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		return fmt.Errorf("JWT_SECRET_KEY must not be empty")
	}
	if !strings.EqualFold(c.JWTAlgorithm, "HS256") && !strings.EqualFold(c.JWTAlgorithm, "HS384") && !strings.EqualFold(c.JWTAlgorithm, "HS512") {
		return fmt.Errorf("JWT_ALGORITHM must be an HMAC algorithm, got %s", c.JWTAlgorithm)
	}
	if c.JWTExpirationMinutes <= 0 {
		return fmt.Errorf("JWT_EXPIRATION_MINUTES must be positive")
	}
	if c.KeyRotationGraceHours < 0 {
		return fmt.Errorf("KEY_ROTATION_GRACE_HOURS must not be negative")
	}
	if c.RateLimitAuthPerMinute <= 0 || c.RateLimitAPIPerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
