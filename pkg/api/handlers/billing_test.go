package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	custommw "github.com/mediastudio/studio-billing/pkg/api/middleware"
	"github.com/mediastudio/studio-billing/pkg/billing"
	"github.com/mediastudio/studio-billing/pkg/domain"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"github.com/mediastudio/studio-billing/pkg/metrics"
	"github.com/mediastudio/studio-billing/pkg/models"
	"github.com/mediastudio/studio-billing/pkg/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLookup struct {
	refs map[string]*billing.SubscriptionRef
}

func (s *stubLookup) LookupSubscription(_ context.Context, id string) (*billing.SubscriptionRef, error) {
	if ref, ok := s.refs[id]; ok {
		return ref, nil
	}
	return nil, domain.NewNotFoundError("subscription")
}

func setupBillingHandler(t *testing.T) (*BillingHandler, billing.Store) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	store := billing.NewStore(db)
	svc := billing.NewService(store, &stubLookup{}, testutil.WebhookSecret, metrics.New(prometheus.NewRegistry()), logger.Discard())

	return NewBillingHandler(svc, logger.Discard()), store
}

func webhookRequest(payload []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/stripe-webhook", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	return req
}

func checkoutEvent(t *testing.T, userID string, tier models.Tier) []byte {
	return testutil.EventPayload(t, "checkout.session.completed", map[string]any{
		"id":           testutil.StripeID("cs"),
		"object":       "checkout.session",
		"customer":     testutil.StripeID("cus"),
		"subscription": testutil.StripeID("sub"),
		"metadata": map[string]any{
			"user_id": userID,
			"tier":    string(tier),
		},
	})
}

func TestHandleWebhook_Acknowledges(t *testing.T) {
	h, store := setupBillingHandler(t)
	e := echo.New()

	userID := testutil.UserID()
	payload := checkoutEvent(t, userID, models.TierPro)

	rec := httptest.NewRecorder()
	c := e.NewContext(webhookRequest(payload, testutil.Sign(payload, testutil.WebhookSecret)), rec)

	require.NoError(t, h.HandleWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	credits, err := store.GetCredits(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 250, credits.Balance)
}

func TestHandleWebhook_UnknownEventAcknowledged(t *testing.T) {
	h, _ := setupBillingHandler(t)
	e := echo.New()

	payload := testutil.EventPayload(t, "customer.created", map[string]any{"id": testutil.StripeID("cus"), "object": "customer"})

	rec := httptest.NewRecorder()
	c := e.NewContext(webhookRequest(payload, testutil.Sign(payload, testutil.WebhookSecret)), rec)

	require.NoError(t, h.HandleWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	tests := []struct {
		name      string
		signature func(payload []byte) string
	}{
		{"missing header", func([]byte) string { return "" }},
		{"wrong secret", func(p []byte) string { return testutil.Sign(p, "whsec_someone_else") }},
		{"garbage", func([]byte) string { return "t=1,v1=deadbeef" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store := setupBillingHandler(t)
			e := echo.New()

			userID := testutil.UserID()
			payload := checkoutEvent(t, userID, models.TierPro)

			rec := httptest.NewRecorder()
			c := e.NewContext(webhookRequest(payload, tt.signature(payload)), rec)

			require.NoError(t, h.HandleWebhook(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "invalid_signature", resp.Error)

			_, err := store.GetSubscription(context.Background(), userID)
			assert.True(t, domain.IsNotFound(err))
		})
	}
}

func TestHandleWebhook_MalformedBody(t *testing.T) {
	h, _ := setupBillingHandler(t)
	e := echo.New()

	payload := []byte(`{"id": "evt_1", "type": `)

	rec := httptest.NewRecorder()
	c := e.NewContext(webhookRequest(payload, testutil.Sign(payload, testutil.WebhookSecret)), rec)

	require.NoError(t, h.HandleWebhook(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "malformed_event")
}

func TestHandleWebhook_MissingSecret(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := billing.NewService(billing.NewStore(db), &stubLookup{}, "", metrics.New(prometheus.NewRegistry()), logger.Discard())
	h := NewBillingHandler(svc, logger.Discard())
	e := echo.New()

	payload := checkoutEvent(t, testutil.UserID(), models.TierPro)

	rec := httptest.NewRecorder()
	c := e.NewContext(webhookRequest(payload, testutil.Sign(payload, testutil.WebhookSecret)), rec)

	require.NoError(t, h.HandleWebhook(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "configuration_error")
}

func TestPreflight(t *testing.T) {
	h, _ := setupBillingHandler(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodOptions, "/functions/v1/stripe-webhook", nil), rec)

	require.NoError(t, h.Preflight(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGetStatus(t *testing.T) {
	h, store := setupBillingHandler(t)
	e := echo.New()
	ctx := context.Background()

	userID := testutil.UserID()
	require.NoError(t, store.UpsertSubscription(ctx, &models.Subscription{
		UserID:    userID,
		Tier:      models.TierStarter,
		Status:    models.StatusActive,
		UpdatedAt: testutil.EventTime,
	}))
	require.NoError(t, store.UpsertCredits(ctx, &models.Credits{
		UserID:           userID,
		Balance:          42,
		MonthlyAllowance: 100,
		Tier:             models.TierStarter,
		UpdatedAt:        testutil.EventTime,
	}))

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/billing/status", nil), rec)
	c.Set(custommw.ContextUserID, userID)

	require.NoError(t, h.GetStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.BillingStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp.UserID)
	require.NotNil(t, resp.Subscription)
	assert.Equal(t, models.TierStarter, resp.Subscription.Tier)
	require.NotNil(t, resp.Credits)
	assert.Equal(t, 42, resp.Credits.Balance)
}

func TestGetStatus_NoRecords(t *testing.T) {
	h, _ := setupBillingHandler(t)
	e := echo.New()

	userID := testutil.UserID()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/billing/status", nil), rec)
	c.Set(custommw.ContextUserID, userID)

	require.NoError(t, h.GetStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.BillingStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp.UserID)
	assert.Nil(t, resp.Subscription)
	assert.Nil(t, resp.Credits)
}

func TestGetStatus_Unauthenticated(t *testing.T) {
	h, _ := setupBillingHandler(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/billing/status", nil), rec)

	require.NoError(t, h.GetStatus(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetPricing(t *testing.T) {
	h, _ := setupBillingHandler(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/billing/pricing", nil), rec)

	require.NoError(t, h.GetPricing(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.PricingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tiers, len(models.Tiers))
	for i, tier := range resp.Tiers {
		assert.Equal(t, models.Tiers[i].Allowance(), tier.MonthlyCredits)
	}
}
