package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// WebhookSecret is the signing secret used by test deliveries.
const WebhookSecret = "whsec_test_studio_billing"

// EventTime is a fixed event creation time so expected rows are stable.
var EventTime = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

// EventPayload builds the JSON body of a Stripe event wrapping object.
func EventPayload(t *testing.T, eventType string, object map[string]any) []byte {
	t.Helper()
	return EventPayloadAt(t, eventType, EventTime, object)
}

// EventPayloadAt is EventPayload with an explicit creation time.
func EventPayloadAt(t *testing.T, eventType string, created time.Time, object map[string]any) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"id":          "evt_" + gofakeit.LetterN(16),
		"object":      "event",
		"api_version": stripe.APIVersion,
		"created":     created.Unix(),
		"type":        eventType,
		"livemode":    false,
		"data": map[string]any{
			"object": object,
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}
	return body
}

// Sign returns a Stripe-Signature header for payload, timestamped now.
func Sign(payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  secret,
	})
	return signed.Header
}

// UserID returns a random user identifier in the shape Supabase issues.
func UserID() string {
	return gofakeit.UUID()
}

// StripeID returns a random Stripe object id with the given prefix.
func StripeID(prefix string) string {
	return prefix + "_" + gofakeit.LetterN(14)
}
