package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	_ "github.com/mediastudio/studio-billing/docs"
	"github.com/mediastudio/studio-billing/pkg/api/handlers"
	"github.com/mediastudio/studio-billing/pkg/auth"
	"github.com/mediastudio/studio-billing/pkg/billing"
	"github.com/mediastudio/studio-billing/pkg/domain"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"github.com/mediastudio/studio-billing/pkg/metrics"
	custommiddleware "github.com/mediastudio/studio-billing/pkg/middleware"
	"github.com/mediastudio/studio-billing/pkg/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"
	studioOrigin  = "https://studio.example.com"
)

type noLookup struct{}

func (noLookup) LookupSubscription(context.Context, string) (*billing.SubscriptionRef, error) {
	return nil, domain.NewNotFoundError("subscription")
}

type testServer struct {
	e     *echo.Echo
	store billing.Store
}

func newTestServer(t *testing.T, mutate func(*RouterConfig)) *testServer {
	t.Helper()

	db := testutil.SetupTestDB(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := billing.NewStore(db)
	svc := billing.NewService(store, noLookup{}, testutil.WebhookSecret, m, logger.Discard())

	cfg := RouterConfig{
		Billing:        handlers.NewBillingHandler(svc, logger.Discard()),
		Health:         handlers.NewHealthHandler(db, nil, m),
		Metrics:        m,
		Gatherer:       reg,
		AllowedOrigins: []string{studioOrigin},
		JWTSecret:      testJWTSecret,
		Log:            logger.Discard(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	return &testServer{e: NewRouter(cfg), store: store}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func signedCheckout(t *testing.T, path, userID string) *http.Request {
	t.Helper()

	payload := testutil.EventPayload(t, "checkout.session.completed", map[string]any{
		"id":           testutil.StripeID("cs"),
		"object":       "checkout.session",
		"customer":     testutil.StripeID("cus"),
		"subscription": testutil.StripeID("sub"),
		"metadata":     map[string]any{"user_id": userID, "tier": "pro"},
	})

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Stripe-Signature", testutil.Sign(payload, testutil.WebhookSecret))
	return req
}

func TestWebhookRoutes(t *testing.T) {
	for _, path := range WebhookPaths {
		t.Run(path, func(t *testing.T) {
			s := newTestServer(t, nil)
			userID := testutil.UserID()

			req := signedCheckout(t, path, userID)
			req.Header.Set("Origin", "https://dashboard.stripe.com")
			rec := s.do(req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"received":true}`, rec.Body.String())
			assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

			credits, err := s.store.GetCredits(context.Background(), userID)
			require.NoError(t, err)
			assert.Equal(t, 250, credits.Balance)
		})
	}
}

func TestWebhookRoutes_BadSignature(t *testing.T) {
	s := newTestServer(t, nil)

	req := signedCheckout(t, WebhookPaths[0], testutil.UserID())
	req.Header.Set("Stripe-Signature", "t=1,v1=00")
	rec := s.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_signature")
}

func TestWebhookPreflight(t *testing.T) {
	for _, path := range WebhookPaths {
		t.Run(path, func(t *testing.T) {
			s := newTestServer(t, nil)

			req := httptest.NewRequest(http.MethodOptions, path, nil)
			req.Header.Set("Origin", "http://localhost:5173")
			req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
			req.Header.Set(echo.HeaderAccessControlRequestHeaders, "content-type, stripe-signature")
			rec := s.do(req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
			assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), "stripe-signature")
			assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPost)
		})
	}
}

func TestWebhookPreflight_WithoutOrigin(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodOptions, WebhookPaths[0], nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWebhookRateLimit(t *testing.T) {
	limiter := custommiddleware.NewRateLimiter(60, 1)
	t.Cleanup(limiter.Stop)

	s := newTestServer(t, func(cfg *RouterConfig) { cfg.WebhookLimiter = limiter })

	first := s.do(signedCheckout(t, WebhookPaths[0], testutil.UserID()))
	assert.Equal(t, http.StatusOK, first.Code)

	second := s.do(signedCheckout(t, WebhookPaths[0], testutil.UserID()))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestPricingRoute_CORS(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/pricing", nil)
	req.Header.Set("Origin", studioOrigin)
	rec := s.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, studioOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Body.String(), `"monthly_credits":800`)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/billing/pricing", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = s.do(req)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestStatusRoute(t *testing.T) {
	s := newTestServer(t, nil)
	userID := testutil.UserID()

	require.Equal(t, http.StatusOK, s.do(signedCheckout(t, WebhookPaths[0], userID)).Code)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/billing/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.GenerateJWT(userID, "agent@example.com", testJWTSecret, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/status", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = s.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":250`)
	assert.Contains(t, rec.Body.String(), `"tier":"pro"`)
}

func TestStatusRoute_DisabledWithoutSecret(t *testing.T) {
	s := newTestServer(t, func(cfg *RouterConfig) { cfg.JWTSecret = "" })

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/billing/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"up"`)

	require.Equal(t, http.StatusOK, s.do(signedCheckout(t, WebhookPaths[0], testutil.UserID())).Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "billing_webhook_events_total")
	assert.Contains(t, rec.Body.String(), `event_type="checkout.session.completed"`)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/billing/pricing", nil))
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
}

func TestSwaggerDoc(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Studio Billing API")
	assert.Contains(t, rec.Body.String(), "/functions/v1/stripe-webhook")
}
