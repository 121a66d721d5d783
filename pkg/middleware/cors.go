package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4/middleware"
)

// WebhookCORSHeaders are the request headers browsers may send to the
// webhook routes, matching what Supabase edge functions accept.
var WebhookCORSHeaders = []string{
	"authorization",
	"x-client-info",
	"apikey",
	"content-type",
	"stripe-signature",
}

// WebhookCORSConfig answers preflights permissively so test deliveries can
// be sent from a browser. Authenticity comes from the Stripe signature, not
// the origin.
func WebhookCORSConfig() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodPost,
			http.MethodOptions,
		},
		AllowHeaders: WebhookCORSHeaders,
	}
}

// CORSConfig returns the CORS configuration for the billing API used by
// the studio frontend.
func CORSConfig(allowedOrigins []string) middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodOptions,
		},
		AllowCredentials: true,
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
		},
	}
}
