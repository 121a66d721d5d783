package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mediastudio/studio-billing/pkg/domain"
)

// Config holds all application configuration
type Config struct {
	// API Configuration
	APIPort        string
	APIHost        string
	APIEnvironment string

	// Browser origins allowed on the billing API (the webhook routes allow any)
	CORSAllowedOrigins []string

	// Database (service-role connection, bypasses row level security)
	DatabaseURL            string `validate:"required"`
	DatabaseServiceRoleKey string `validate:"required"`
	DBSSLMode              string
	DBSSLCertPath          string
	DBSSLKeyPath           string
	DBSSLRootCertPath      string
	DBMaxOpenConns         int
	DBMaxIdleConns         int
	DBConnMaxLifetime      time.Duration
	DBAutoMigrate          bool

	// Redis (optional, caches Stripe subscription lookups)
	RedisURL             string
	SubscriptionCacheTTL time.Duration

	// Stripe
	StripeSecretKey     string `validate:"required"`
	StripeWebhookSecret string `validate:"required"`

	// Supabase access tokens for the billing status endpoint
	SupabaseJWTSecret string

	// Secrets backend for credentials not set in the environment
	SecretsBackend string
	AWSRegion      string
	AWSSecretID    string

	// Rate Limiting
	WebhookRateLimitPerMinute int
	WebhookRateLimitBurst     int

	// Sentry
	SentryDSN         string
	SentryEnvironment string

	// OpenTelemetry
	OTelEndpoint    string
	OTelInsecure    bool
	OTelSampleRatio float64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// API
		APIPort:        getEnv("API_PORT", "8080"),
		APIHost:        getEnv("API_HOST", "0.0.0.0"),
		APIEnvironment: getEnv("API_ENVIRONMENT", "development"),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		// Database
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		DatabaseServiceRoleKey: getEnv("DATABASE_SERVICE_ROLE_KEY", ""),
		DBSSLMode:              getEnv("DB_SSL_MODE", ""),
		DBSSLCertPath:          getEnv("DB_SSL_CERT_PATH", ""),
		DBSSLKeyPath:           getEnv("DB_SSL_KEY_PATH", ""),
		DBSSLRootCertPath:      getEnv("DB_SSL_ROOT_CERT_PATH", ""),
		DBMaxOpenConns:         getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:         getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:      getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		DBAutoMigrate:          getEnvAsBool("DB_AUTO_MIGRATE", false),

		// Redis
		RedisURL:             getEnv("REDIS_URL", ""),
		SubscriptionCacheTTL: getEnvAsDuration("SUBSCRIPTION_CACHE_TTL", 10*time.Minute),

		// Stripe
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		// Supabase
		SupabaseJWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),

		// Secrets
		SecretsBackend: getEnv("SECRETS_BACKEND", "env"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSSecretID:    getEnv("AWS_SECRET_ID", ""),

		// Rate Limiting
		WebhookRateLimitPerMinute: getEnvAsInt("WEBHOOK_RATE_LIMIT_PER_MINUTE", 100),
		WebhookRateLimitBurst:     getEnvAsInt("WEBHOOK_RATE_LIMIT_BURST", 20),

		// Sentry
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "development"),

		// OpenTelemetry
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelInsecure:    getEnvAsBool("OTEL_INSECURE", false),
		OTelSampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1.0),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

var validate = validator.New()

// Validate reports every missing required setting as a single
// configuration error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.NewConfigurationError(err.Error())
	}

	missing := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		missing = append(missing, envNames[fe.Field()])
	}
	return domain.NewConfigurationError("missing required settings: " + strings.Join(missing, ", "))
}

var envNames = map[string]string{
	"DatabaseURL":            "DATABASE_URL",
	"DatabaseServiceRoleKey": "DATABASE_SERVICE_ROLE_KEY",
	"StripeSecretKey":        "STRIPE_SECRET_KEY",
	"StripeWebhookSecret":    "STRIPE_WEBHOOK_SECRET",
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
