package api

import (
	"strings"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mediastudio/studio-billing/pkg/api/handlers"
	custommw "github.com/mediastudio/studio-billing/pkg/api/middleware"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"github.com/mediastudio/studio-billing/pkg/metrics"
	custommiddleware "github.com/mediastudio/studio-billing/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// WebhookPaths are the routes Stripe deliveries are accepted on. The first
// mirrors the Supabase edge function URL so existing dashboard endpoints
// keep working.
var WebhookPaths = []string{
	"/functions/v1/stripe-webhook",
	"/api/v1/webhook/stripe",
}

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	Billing *handlers.BillingHandler
	Health  *handlers.HealthHandler
	Metrics *metrics.Metrics

	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer

	// WebhookLimiter throttles deliveries per IP. Nil disables limiting.
	WebhookLimiter *custommiddleware.RateLimiter

	AllowedOrigins []string

	// JWTSecret enables /api/v1/billing/status when set.
	JWTSecret string

	SentryEnabled bool
	BodyLimit     string
	Log           logger.Logger
}

// NewRouter builds the Echo instance with middleware and routes registered.
func NewRouter(cfg RouterConfig) *echo.Echo {
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	bodyLimit := cfg.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "1M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogStatus:  true,
		LogURI:     true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				log.Warn("request failed", append(args, "error", v.Error)...)
				return nil
			}
			log.Info("request", args...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	if cfg.SentryEnabled {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true, // let Recover write the response
		}))
	}

	if cfg.Metrics != nil {
		e.Use(cfg.Metrics.Middleware())
	}

	e.Use(middleware.Secure())
	securityHeaders := custommiddleware.DefaultSecurityHeadersConfig()
	securityHeaders.Skipper = func(c echo.Context) bool {
		// Swagger UI loads its own scripts and styles.
		return strings.HasPrefix(c.Request().URL.Path, "/swagger/")
	}
	e.Use(custommiddleware.SecurityHeaders(securityHeaders))
	e.Use(middleware.BodyLimit(bodyLimit))

	// Restricted CORS for the billing API; webhook routes carry their own.
	apiCORS := custommiddleware.CORSConfig(cfg.AllowedOrigins)
	apiCORS.Skipper = isWebhookPath
	e.Use(middleware.CORSWithConfig(apiCORS))

	e.GET("/health", cfg.Health.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Swagger documentation (public)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Stripe webhooks (public, authenticated by signature)
	webhookCORS := middleware.CORSWithConfig(custommiddleware.WebhookCORSConfig())
	webhookMW := []echo.MiddlewareFunc{webhookCORS}
	if cfg.WebhookLimiter != nil {
		webhookMW = append(webhookMW, cfg.WebhookLimiter.RateLimitMiddleware())
	}
	for _, path := range WebhookPaths {
		e.POST(path, cfg.Billing.HandleWebhook, webhookMW...)
		e.OPTIONS(path, cfg.Billing.Preflight, webhookCORS)
	}

	// Billing API
	billingGroup := e.Group("/api/v1/billing")
	billingGroup.GET("/pricing", cfg.Billing.GetPricing)
	if cfg.JWTSecret != "" {
		billingGroup.GET("/status", cfg.Billing.GetStatus, custommw.JWTMiddleware(cfg.JWTSecret))
	} else {
		log.Warn("SUPABASE_JWT_SECRET not set, billing status endpoint disabled")
	}

	return e
}

func isWebhookPath(c echo.Context) bool {
	path := c.Request().URL.Path
	for _, p := range WebhookPaths {
		if strings.TrimSuffix(path, "/") == p {
			return true
		}
	}
	return false
}
