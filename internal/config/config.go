// Package config handles application configuration from environment variables.
//
// All process-wide tunables live here and are read exactly once at startup;
// the rest of the codebase takes the resulting struct (or a slice of it) by
// reference instead of reaching for os.Getenv.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Dashboard auth
	JWTSecret   string
	AdminSecret string // X-Admin-Secret for back-office endpoints

	// Billing (Stripe)
	StripeSecretKey     string
	StripeWebhookSecret string

	// Outbound email
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	// AppBaseURL is the dashboard origin used to build verification links,
	// e.g. https://app.willowchat.io
	AppBaseURL string

	// Usage metering. Limits <= 0 mean unlimited.
	Usage UsageLimits

	// Tracing
	OTLPEndpoint string
}

// UsageLimits is the per-tier message cap table plus the rolling billing
// period length. Each field is independently overridable via environment.
type UsageLimits struct {
	Trial      int
	Basic      int
	Growth     int
	Pro        int
	Custom     int
	PeriodDays int
}

// Defaults.
const (
	DefaultPort       = "8080"
	DefaultEnv        = "development"
	DefaultLogLevel   = "info"
	DefaultEmailFrom  = "no-reply@willowchat.io"
	DefaultFromName   = "Willow Chat"
	DefaultAppBaseURL = "http://localhost:3000"

	DefaultTrialLimit  = 200
	DefaultBasicLimit  = 50
	DefaultGrowthLimit = 500
	DefaultProLimit    = 2000
	DefaultCustomLimit = 10000
	DefaultPeriodDays  = 30
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		JWTSecret:           os.Getenv("JWT_SECRET"),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		EmailFrom:           getEnv("EMAIL_FROM", DefaultEmailFrom),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", DefaultFromName),
		AppBaseURL:          getEnv("APP_BASE_URL", DefaultAppBaseURL),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Usage: UsageLimits{
			Trial:      getEnvInt("USAGE_LIMIT_TRIAL", DefaultTrialLimit),
			Basic:      getEnvInt("USAGE_LIMIT_BASIC", DefaultBasicLimit),
			Growth:     getEnvInt("USAGE_LIMIT_GROWTH", DefaultGrowthLimit),
			Pro:        getEnvInt("USAGE_LIMIT_PRO", DefaultProLimit),
			Custom:     getEnvInt("USAGE_LIMIT_CUSTOM", DefaultCustomLimit),
			PeriodDays: getEnvInt("USAGE_PERIOD_DAYS", DefaultPeriodDays),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Usage.PeriodDays <= 0 {
		return fmt.Errorf("USAGE_PERIOD_DAYS must be positive")
	}
	if c.AppBaseURL == "" {
		return fmt.Errorf("APP_BASE_URL is required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
