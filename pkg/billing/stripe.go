package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mediastudio/studio-billing/pkg/domain"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"github.com/mediastudio/studio-billing/pkg/metrics"
	"github.com/mediastudio/studio-billing/pkg/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/mediastudio/studio-billing/pkg/billing"

// checkoutPeriod is the period window written on checkout completion.
// Later subscription updates replace it with Stripe's own timestamps.
const checkoutPeriod = 30 * 24 * time.Hour

// Service reconciles Stripe webhook deliveries into subscription and
// credits records.
type Service struct {
	store         Store
	lookup        SubscriptionLookup
	webhookSecret string
	metrics       *metrics.Metrics
	log           logger.Logger
	validate      *validator.Validate
	now           func() time.Time
}

// NewService creates a new billing service. store must be backed by the
// service-role database handle.
func NewService(store Store, lookup SubscriptionLookup, webhookSecret string, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{
		store:         store,
		lookup:        lookup,
		webhookSecret: webhookSecret,
		metrics:       m,
		log:           log.With("component", "billing"),
		validate:      validator.New(),
		now:           time.Now,
	}
}

// Store returns the store the service writes through.
func (s *Service) Store() Store {
	return s.store
}

// checkoutMetadata is what a checkout session must carry to be applied.
type checkoutMetadata struct {
	UserID string `validate:"required,max=64"`
	Tier   string `validate:"required,oneof=free starter pro enterprise"`
}

// HandleWebhook verifies a Stripe delivery and applies its transition.
// A nil return means the delivery should be acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "billing.HandleWebhook")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, domain.GetErrorCode(err))
		}
		span.End()
	}()

	if s.webhookSecret == "" || s.store == nil || s.lookup == nil {
		return domain.NewConfigurationError("billing service is missing its webhook secret, store or subscription lookup")
	}

	// Verify against the raw bytes before decoding anything.
	if err := webhook.ValidatePayload(payload, signature, s.webhookSecret); err != nil {
		s.metrics.RecordWebhookEvent("", metrics.OutcomeRejected)
		s.log.Warn("rejected webhook delivery", "error", err)
		return domain.NewInvalidSignatureError(err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		s.metrics.RecordWebhookEvent("", metrics.OutcomeRejected)
		return domain.NewMalformedEventError(err)
	}
	if event.Type == "" || event.Data == nil {
		s.metrics.RecordWebhookEvent(string(event.Type), metrics.OutcomeRejected)
		return domain.NewMalformedEventError(errors.New("event has no type or data"))
	}

	span.SetAttributes(
		attribute.String("stripe.event_id", event.ID),
		attribute.String("stripe.event_type", string(event.Type)),
	)

	log := logger.WithTrace(ctx, s.log).With("event_id", event.ID, "event_type", string(event.Type))
	at := s.eventTime(event, log)

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		err = s.handleCheckoutCompleted(ctx, event, at, log)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		err = s.handleSubscriptionUpdated(ctx, event, at, log)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		err = s.handleSubscriptionDeleted(ctx, event, at, log)
	case stripe.EventTypeInvoicePaymentSucceeded:
		err = s.handleInvoicePaymentSucceeded(ctx, event, at, log)
	case stripe.EventTypeInvoicePaymentFailed:
		err = s.handleInvoicePaymentFailed(ctx, event, at, log)
	default:
		log.Debug("ignoring unhandled webhook event")
		s.metrics.RecordWebhookEvent(string(event.Type), metrics.OutcomeIgnored)
		return nil
	}

	return s.finish(log, string(event.Type), err)
}

// finish records the outcome. Skipped transitions are acknowledged so
// Stripe does not retry a delivery that can never apply.
func (s *Service) finish(log logger.Logger, eventType string, err error) error {
	switch {
	case err == nil:
		s.metrics.RecordWebhookEvent(eventType, metrics.OutcomeApplied)
		log.Info("webhook event applied")
		return nil
	case domain.IsTransitionSkipped(err):
		s.metrics.RecordWebhookEvent(eventType, metrics.OutcomeSkipped)
		log.Warn("webhook event skipped", "reason", err.Error())
		return nil
	case domain.IsMalformedEvent(err):
		s.metrics.RecordWebhookEvent(eventType, metrics.OutcomeRejected)
		return err
	default:
		s.metrics.RecordWebhookEvent(eventType, metrics.OutcomeFailed)
		log.Error("webhook event failed", "error", err)
		return err
	}
}

// eventTime is the clock every transition writes with. Using the event's
// creation time keeps re-deliveries byte-identical.
func (s *Service) eventTime(event stripe.Event, log logger.Logger) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	log.Warn("event has no creation time, using wall clock")
	return s.now().UTC().Truncate(time.Second)
}

// handleCheckoutCompleted handles checkout.session.completed event
func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event, at time.Time, log logger.Logger) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return domain.NewMalformedEventError(err)
	}

	meta := checkoutMetadata{
		UserID: sess.Metadata["user_id"],
		Tier:   sess.Metadata["tier"],
	}
	if meta.UserID == "" {
		meta.UserID = sess.ClientReferenceID
	}
	if err := s.validate.Struct(meta); err != nil {
		return domain.NewTransitionSkippedError(string(event.Type), "session metadata: "+err.Error())
	}

	tier := models.Tier(meta.Tier)
	periodEnd := at.Add(checkoutPeriod)

	sub := &models.Subscription{
		UserID:             meta.UserID,
		Tier:               tier,
		Status:             models.StatusActive,
		CurrentPeriodStart: timePtr(at),
		CurrentPeriodEnd:   &periodEnd,
		CancelAtPeriodEnd:  false,
		UpdatedAt:          at,
	}
	if sess.Customer != nil {
		sub.StripeCustomerID = stringPtr(sess.Customer.ID)
	}
	if sess.Subscription != nil {
		sub.StripeSubscriptionID = stringPtr(sess.Subscription.ID)
	}

	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return err
	}
	if err := s.resetCredits(ctx, meta.UserID, tier, at); err != nil {
		return err
	}

	log.Info("checkout completed", "user_id", meta.UserID, "tier", tier)
	return nil
}

// handleSubscriptionUpdated handles customer.subscription.updated event
func (s *Service) handleSubscriptionUpdated(ctx context.Context, event stripe.Event, at time.Time, log logger.Logger) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return domain.NewMalformedEventError(err)
	}

	userID, existing, err := s.resolveSubscriber(ctx, string(event.Type), stripeSub.ID, stripeSub.Metadata["user_id"])
	if err != nil {
		return err
	}
	if err := staleEvent(string(event.Type), existing, at); err != nil {
		return err
	}

	tier := models.TierFree
	if raw := stripeSub.Metadata["tier"]; raw != "" {
		parsed, ok := models.ParseTier(raw)
		if !ok {
			return domain.NewTransitionSkippedError(string(event.Type), "unknown tier "+raw)
		}
		tier = parsed
	}

	status, ok := mapStatus(stripeSub.Status)
	if !ok {
		if existing == nil {
			return domain.NewTransitionSkippedError(string(event.Type), "unrecognized status "+string(stripeSub.Status))
		}
		log.Warn("unrecognized subscription status, keeping stored status",
			"stripe_status", string(stripeSub.Status), "status", existing.Status)
		status = existing.Status
	}

	sub := &models.Subscription{UserID: userID}
	if existing != nil {
		sub = existing
	}
	sub.Tier = tier
	sub.Status = status
	sub.StripeSubscriptionID = stringPtr(stripeSub.ID)
	if stripeSub.Customer != nil && stripeSub.Customer.ID != "" {
		sub.StripeCustomerID = stringPtr(stripeSub.Customer.ID)
	}
	sub.CurrentPeriodStart = unixPtr(stripeSub.CurrentPeriodStart)
	sub.CurrentPeriodEnd = unixPtr(stripeSub.CurrentPeriodEnd)
	sub.CancelAtPeriodEnd = stripeSub.CancelAtPeriodEnd
	sub.UpdatedAt = at

	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return err
	}
	s.invalidate(ctx, stripeSub.ID, log)

	log.Info("subscription updated", "user_id", userID, "tier", tier, "status", status)
	return nil
}

// handleSubscriptionDeleted handles customer.subscription.deleted event
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event, at time.Time, log logger.Logger) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return domain.NewMalformedEventError(err)
	}

	userID, existing, err := s.resolveSubscriber(ctx, string(event.Type), stripeSub.ID, stripeSub.Metadata["user_id"])
	if err != nil {
		return err
	}
	if err := staleEvent(string(event.Type), existing, at); err != nil {
		return err
	}

	// Soft downgrade: the row stays, the subscription reference goes.
	sub := &models.Subscription{UserID: userID}
	if existing != nil {
		sub = existing
	} else if stripeSub.Customer != nil && stripeSub.Customer.ID != "" {
		sub.StripeCustomerID = stringPtr(stripeSub.Customer.ID)
	}
	sub.Tier = models.TierFree
	sub.Status = models.StatusCanceled
	sub.StripeSubscriptionID = nil
	sub.CancelAtPeriodEnd = false
	sub.UpdatedAt = at

	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return err
	}
	if err := s.resetCredits(ctx, userID, models.TierFree, at); err != nil {
		return err
	}
	s.invalidate(ctx, stripeSub.ID, log)
	s.metrics.RecordDowngrade()

	log.Info("subscription canceled, downgraded to free", "user_id", userID)
	return nil
}

// handleInvoicePaymentSucceeded handles invoice.payment_succeeded event.
// This is the monthly top-up: the balance is set, never added to.
func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, event stripe.Event, at time.Time, log logger.Logger) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return domain.NewMalformedEventError(err)
	}

	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		return domain.NewTransitionSkippedError(string(event.Type), "invoice has no subscription")
	}
	subscriptionID := invoice.Subscription.ID

	userID, tier, err := s.resolveInvoiceSubscription(ctx, string(event.Type), subscriptionID, log)
	if err != nil {
		return err
	}

	if err := s.resetCredits(ctx, userID, tier, at); err != nil {
		return err
	}

	log.Info("credits reset after payment", "user_id", userID, "tier", tier, "invoice_id", invoice.ID)
	return nil
}

// handleInvoicePaymentFailed handles invoice.payment_failed event
func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event, at time.Time, log logger.Logger) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return domain.NewMalformedEventError(err)
	}

	if invoice.Customer == nil || invoice.Customer.ID == "" {
		return domain.NewTransitionSkippedError(string(event.Type), "invoice has no customer")
	}

	sub, err := s.store.FindSubscriptionByCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.NewTransitionSkippedError(string(event.Type), "no subscription for customer "+invoice.Customer.ID)
		}
		return err
	}
	if err := staleEvent(string(event.Type), sub, at); err != nil {
		return err
	}

	err = s.store.UpdateSubscription(ctx, sub.UserID, map[string]any{
		"status":     models.StatusPastDue,
		"updated_at": at,
	})
	if err != nil {
		return err
	}
	s.metrics.RecordPaymentFailure()

	log.Info("subscription marked past due", "user_id", sub.UserID, "invoice_id", invoice.ID)
	return nil
}

// staleEvent skips an event created before the stored row was last written,
// so a late re-delivery cannot undo a newer transition.
func staleEvent(eventType string, existing *models.Subscription, at time.Time) error {
	if existing != nil && at.Before(existing.UpdatedAt) {
		return domain.NewTransitionSkippedError(eventType, "event predates stored subscription update at "+existing.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// resolveSubscriber finds the user a subscription event belongs to: first
// by the stored subscription reference, then by the user_id metadata.
// existing is nil when the user has no subscription row yet.
func (s *Service) resolveSubscriber(ctx context.Context, eventType, subscriptionID, metadataUserID string) (string, *models.Subscription, error) {
	existing, err := s.store.FindSubscriptionByStripeID(ctx, subscriptionID)
	if err == nil {
		return existing.UserID, existing, nil
	}
	if !domain.IsNotFound(err) {
		return "", nil, err
	}

	if metadataUserID == "" {
		return "", nil, domain.NewTransitionSkippedError(eventType, "unknown subscription "+subscriptionID+" and no user_id metadata")
	}

	existing, err = s.store.GetSubscription(ctx, metadataUserID)
	if err != nil {
		if domain.IsNotFound(err) {
			return metadataUserID, nil, nil
		}
		return "", nil, err
	}
	return metadataUserID, existing, nil
}

// resolveInvoiceSubscription asks Stripe who owns the subscription and on
// which tier, falling back to the stored row when Stripe cannot say.
func (s *Service) resolveInvoiceSubscription(ctx context.Context, eventType, subscriptionID string, log logger.Logger) (string, models.Tier, error) {
	ref, lookupErr := s.lookup.LookupSubscription(ctx, subscriptionID)
	if lookupErr == nil && ref.UserID != "" {
		if tier, ok := models.ParseTier(string(ref.Tier)); ok {
			return ref.UserID, tier, nil
		}
	}

	local, err := s.store.FindSubscriptionByStripeID(ctx, subscriptionID)
	if lookupErr == nil && ref.UserID != "" {
		// Stripe knows the owner but not the tier: the stored row decides.
		tier := models.TierFree
		switch {
		case err == nil && local.UserID == ref.UserID:
			tier = local.Tier.OrFree()
		case err != nil && !domain.IsNotFound(err):
			return "", "", err
		default:
			log.Warn("subscription has no known tier, using free", "subscription_id", subscriptionID, "tier", string(ref.Tier))
		}
		return ref.UserID, tier, nil
	}
	if err == nil {
		if lookupErr != nil {
			log.Warn("stripe lookup failed, using stored subscription", "subscription_id", subscriptionID, "error", lookupErr)
		}
		return local.UserID, local.Tier.OrFree(), nil
	}
	if !domain.IsNotFound(err) {
		return "", "", err
	}

	if lookupErr != nil && !domain.IsNotFound(lookupErr) {
		return "", "", lookupErr
	}
	return "", "", domain.NewTransitionSkippedError(eventType, "no owner found for subscription "+subscriptionID)
}

// resetCredits sets balance and allowance to the tier's full allowance.
func (s *Service) resetCredits(ctx context.Context, userID string, tier models.Tier, at time.Time) error {
	allowance := tier.Allowance()
	credits := &models.Credits{
		UserID:           userID,
		Balance:          allowance,
		MonthlyAllowance: allowance,
		Tier:             tier,
		LastResetAt:      timePtr(at),
		UpdatedAt:        at,
	}
	if err := s.store.UpsertCredits(ctx, credits); err != nil {
		return err
	}
	s.metrics.RecordCreditReset(string(tier))
	return nil
}

func (s *Service) invalidate(ctx context.Context, subscriptionID string, log logger.Logger) {
	inv, ok := s.lookup.(lookupInvalidator)
	if !ok || subscriptionID == "" {
		return
	}
	if err := inv.Invalidate(ctx, subscriptionID); err != nil {
		log.Warn("failed to invalidate subscription lookup", "subscription_id", subscriptionID, "error", err)
	}
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func unixPtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
