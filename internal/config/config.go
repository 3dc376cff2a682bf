// Package config loads application configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all settings for the server and the outbox worker.
type Config struct {
	// AppEnv is "development" or "production"
	AppEnv string

	// AppPort is the HTTP listen port
	AppPort string

	// LogLevel is debug, info, warn or error
	LogLevel string

	// DatabaseURL is the pgx connection string (required)
	DatabaseURL string

	// JWTSecret signs operator access tokens (required in production)
	JWTSecret string

	// TerminalSecret authenticates terminals at the token endpoint
	TerminalSecret string

	// AccessTokenTTL is the operator token lifetime
	AccessTokenTTL time.Duration

	// PricingRulesPath points at the JSON discount rule file; empty
	// disables configurable discounts
	PricingRulesPath string

	// IdempotencyEnabled turns on the idempotency middleware
	IdempotencyEnabled bool

	// IdempotencyTTL is how long completed keys replay
	IdempotencyTTL time.Duration

	// OutboxEnabled turns on transactional event publishing
	OutboxEnabled bool

	// OutboxInterval is the relay polling interval (worker)
	OutboxInterval time.Duration

	// OutboxBatchSize is how many pending events one relay pass claims
	OutboxBatchSize int
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		AppPort:            getEnv("APP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TerminalSecret:     getEnv("TERMINAL_SECRET", ""),
		AccessTokenTTL:     getEnvDuration("ACCESS_TOKEN_TTL", 8*time.Hour),
		PricingRulesPath:   getEnv("PRICING_RULES_PATH", ""),
		IdempotencyEnabled: getEnvBool("IDEMPOTENCY_ENABLED", true),
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 10*time.Minute),
		OutboxEnabled:      getEnvBool("OUTBOX_ENABLED", true),
		OutboxInterval:     getEnvDuration("OUTBOX_INTERVAL", 5*time.Second),
		OutboxBatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("required environment variable DATABASE_URL not set")
	}
	if cfg.AppEnv == "production" && cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set in production")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
	}

	return cfg, nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
