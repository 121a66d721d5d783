package main

// @title Studio Billing API
// @version 1.0
// @description Stripe webhook reconciler and billing status for the media studio.

// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and a Supabase access token.

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mediastudio/studio-billing/config"
	_ "github.com/mediastudio/studio-billing/docs" // Swagger docs (generated)
	"github.com/mediastudio/studio-billing/pkg/api"
	"github.com/mediastudio/studio-billing/pkg/api/handlers"
	"github.com/mediastudio/studio-billing/pkg/billing"
	"github.com/mediastudio/studio-billing/pkg/cache"
	"github.com/mediastudio/studio-billing/pkg/database"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"github.com/mediastudio/studio-billing/pkg/metrics"
	custommiddleware "github.com/mediastudio/studio-billing/pkg/middleware"
	"github.com/mediastudio/studio-billing/pkg/secrets"
	"github.com/mediastudio/studio-billing/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	// Credentials missing from the environment come from the secrets backend
	secretSource, err := secrets.NewSource(secrets.Config{
		Backend:   cfg.SecretsBackend,
		AWSRegion: cfg.AWSRegion,
		SecretID:  cfg.AWSSecretID,
	}, log)
	if err != nil {
		log.Error("failed to initialize secrets backend", "error", err)
		os.Exit(1)
	}
	secretsCtx, cancelSecrets := context.WithTimeout(context.Background(), 10*time.Second)
	err = secrets.Fill(secretsCtx, secretSource, map[string]*string{
		"STRIPE_SECRET_KEY":         &cfg.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET":     &cfg.StripeWebhookSecret,
		"DATABASE_URL":              &cfg.DatabaseURL,
		"DATABASE_SERVICE_ROLE_KEY": &cfg.DatabaseServiceRoleKey,
		"SUPABASE_JWT_SECRET":       &cfg.SupabaseJWTSecret,
	})
	cancelSecrets()
	if err != nil {
		log.Error("failed to load secrets", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log.Info("configuration loaded", "environment", cfg.APIEnvironment)

	// Initialize Sentry for error tracking
	sentryEnabled := false
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 0.2,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Warn("failed to initialize Sentry", "error", err)
		} else {
			sentryEnabled = true
			log.Info("sentry initialized", "environment", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Info("sentry disabled (no DSN configured)")
	}

	// Initialize OpenTelemetry tracing
	shutdownTracing, err := tracing.Init(context.Background(), tracing.Config{
		ServiceName: "studio-billing",
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
	}, log)
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("failed to flush traces", "error", err)
		}
	}()

	// Initialize database with the service-role credential and SSL configuration
	dbURL, err := database.WithServiceRole(cfg.DatabaseURL, cfg.DatabaseServiceRoleKey)
	if err != nil {
		log.Error("invalid database URL", "error", err)
		os.Exit(1)
	}
	sslCfg := &database.SSLConfig{
		Mode:         cfg.DBSSLMode,
		CertPath:     cfg.DBSSLCertPath,
		KeyPath:      cfg.DBSSLKeyPath,
		RootCertPath: cfg.DBSSLRootCertPath,
	}
	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = cfg.DBMaxOpenConns
	poolCfg.MaxIdleConns = cfg.DBMaxIdleConns
	poolCfg.ConnMaxLifetime = cfg.DBConnMaxLifetime

	db, err := database.NewClient(dbURL, poolCfg, sslCfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			log.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New(prometheus.DefaultRegisterer)

	// Stripe subscription lookups, cached in Redis when configured
	var lookup billing.SubscriptionLookup = billing.NewStripeLookup(cfg.StripeSecretKey, billing.NewStripeBackends(log))

	var redisClient *cache.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		if cfg.OTelEndpoint != "" {
			if err := redisClient.InstrumentTracing(); err != nil {
				log.Warn("failed to instrument Redis tracing", "error", err)
			}
		}

		lookup = billing.NewCachedLookup(lookup, redisClient, cfg.SubscriptionCacheTTL, prometheusMetrics, log)
		log.Info("subscription lookup cache enabled", "ttl", cfg.SubscriptionCacheTTL.String())
	} else {
		log.Info("redis disabled (no REDIS_URL configured)")
	}

	billingService := billing.NewService(billing.NewStore(db), lookup, cfg.StripeWebhookSecret, prometheusMetrics, log)

	webhookRateLimiter := custommiddleware.NewRateLimiter(cfg.WebhookRateLimitPerMinute, cfg.WebhookRateLimitBurst)
	defer webhookRateLimiter.Stop()

	e := api.NewRouter(api.RouterConfig{
		Billing:        handlers.NewBillingHandler(billingService, log),
		Health:         handlers.NewHealthHandler(db, redisClient, prometheusMetrics),
		Metrics:        prometheusMetrics,
		WebhookLimiter: webhookRateLimiter,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		JWTSecret:      cfg.SupabaseJWTSecret,
		SentryEnabled:  sentryEnabled,
		Log:            log,
	})

	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Info("studio billing API starting",
		"address", address,
		"log_level", cfg.LogLevel,
		"webhook_rate_limit", cfg.WebhookRateLimitPerMinute,
		"webhook_rate_burst", cfg.WebhookRateLimitBurst,
	)

	// Graceful shutdown
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		return
	}

	log.Info("server gracefully stopped")
}
