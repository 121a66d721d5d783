package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mediastudio/studio-billing/pkg/cache"
	"github.com/mediastudio/studio-billing/pkg/domain"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"github.com/mediastudio/studio-billing/pkg/metrics"
	"github.com/mediastudio/studio-billing/pkg/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// DefaultLookupTTL is how long a resolved subscription stays cached.
const DefaultLookupTTL = 10 * time.Minute

// SubscriptionRef is what the reconciler needs to know about a Stripe
// subscription: who owns it and which plan it is on.
type SubscriptionRef struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Tier       models.Tier `json:"tier"`
	CustomerID string      `json:"customer_id,omitempty"`
}

// SubscriptionLookup resolves a Stripe subscription id. Implementations
// return a NOT_FOUND domain error when the provider has no such subscription.
type SubscriptionLookup interface {
	LookupSubscription(ctx context.Context, subscriptionID string) (*SubscriptionRef, error)
}

// lookupInvalidator is implemented by lookups that hold state which a
// subscription change makes stale.
type lookupInvalidator interface {
	Invalidate(ctx context.Context, subscriptionID string) error
}

// StripeLookup fetches subscriptions from the Stripe API using its own
// client, so the secret key never lands in package-level state.
type StripeLookup struct {
	api *client.API
}

// NewStripeLookup creates a lookup for the given secret key. backends may
// be nil to use Stripe's defaults.
func NewStripeLookup(secretKey string, backends *stripe.Backends) *StripeLookup {
	return &StripeLookup{api: client.New(secretKey, backends)}
}

// NewStripeBackends builds API backends that log through log.
func NewStripeBackends(log logger.Logger) *stripe.Backends {
	return stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		LeveledLogger: &stripeLogger{log: log.With("component", "stripe")},
	})
}

// LookupSubscription retrieves the subscription and reads the owner and
// tier from its metadata.
func (l *StripeLookup) LookupSubscription(ctx context.Context, subscriptionID string) (*SubscriptionRef, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := l.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, domain.NewNotFoundError("stripe subscription " + subscriptionID)
		}
		return nil, domain.NewUpstreamError("retrieve stripe subscription", err)
	}

	ref := &SubscriptionRef{
		ID:     sub.ID,
		UserID: sub.Metadata["user_id"],
		Tier:   models.Tier(sub.Metadata["tier"]),
	}
	if sub.Customer != nil {
		ref.CustomerID = sub.Customer.ID
	}
	return ref, nil
}

// CachedLookup decorates a lookup with a Redis cache keyed by subscription id.
type CachedLookup struct {
	next    SubscriptionLookup
	cache   *cache.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewCachedLookup wraps next. Cache failures are logged and fall through
// to next.
func NewCachedLookup(next SubscriptionLookup, c *cache.Client, ttl time.Duration, m *metrics.Metrics, log logger.Logger) *CachedLookup {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	return &CachedLookup{
		next:    next,
		cache:   c,
		ttl:     ttl,
		metrics: m,
		log:     log.With("component", "subscription_cache"),
	}
}

func lookupKey(subscriptionID string) string {
	return "billing:subscription:" + subscriptionID
}

// LookupSubscription serves from cache when possible.
func (l *CachedLookup) LookupSubscription(ctx context.Context, subscriptionID string) (*SubscriptionRef, error) {
	var ref SubscriptionRef
	err := l.cache.GetJSON(ctx, lookupKey(subscriptionID), &ref)
	switch {
	case err == nil:
		l.metrics.RecordCacheHit("redis")
		return &ref, nil
	case errors.Is(err, cache.ErrCacheMiss):
		l.metrics.RecordCacheMiss("redis")
	default:
		l.metrics.RecordCacheMiss("redis")
		l.log.Warn("subscription cache read failed", "subscription_id", subscriptionID, "error", err)
	}

	found, err := l.next.LookupSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if err := l.cache.SetJSON(ctx, lookupKey(subscriptionID), found, l.ttl); err != nil {
		l.log.Warn("subscription cache write failed", "subscription_id", subscriptionID, "error", err)
	}
	return found, nil
}

// Invalidate drops the cached entry for a subscription.
func (l *CachedLookup) Invalidate(ctx context.Context, subscriptionID string) error {
	if err := l.cache.Delete(ctx, lookupKey(subscriptionID)); err != nil {
		return fmt.Errorf("failed to invalidate subscription cache: %w", err)
	}
	return nil
}

// stripeLogger adapts Logger to stripe.LeveledLoggerInterface.
type stripeLogger struct {
	log logger.Logger
}

func (s *stripeLogger) Debugf(format string, v ...interface{}) { s.log.Debug(fmt.Sprintf(format, v...)) }
func (s *stripeLogger) Infof(format string, v ...interface{})  { s.log.Debug(fmt.Sprintf(format, v...)) }
func (s *stripeLogger) Warnf(format string, v ...interface{})  { s.log.Warn(fmt.Sprintf(format, v...)) }
func (s *stripeLogger) Errorf(format string, v ...interface{}) { s.log.Error(fmt.Sprintf(format, v...)) }
