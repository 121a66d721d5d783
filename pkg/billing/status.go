package billing

import (
	"github.com/mediastudio/studio-billing/pkg/models"
	"github.com/stripe/stripe-go/v76"
)

// providerStatuses whitelists Stripe subscription statuses onto the local enum.
var providerStatuses = map[stripe.SubscriptionStatus]models.SubscriptionStatus{
	stripe.SubscriptionStatusActive:            models.StatusActive,
	stripe.SubscriptionStatusTrialing:          models.StatusActive,
	stripe.SubscriptionStatusPastDue:           models.StatusPastDue,
	stripe.SubscriptionStatusUnpaid:            models.StatusPastDue,
	stripe.SubscriptionStatusIncomplete:        models.StatusPastDue,
	stripe.SubscriptionStatusPaused:            models.StatusPastDue,
	stripe.SubscriptionStatusCanceled:          models.StatusCanceled,
	stripe.SubscriptionStatusIncompleteExpired: models.StatusCanceled,
}

// mapStatus returns the local status for a Stripe status and whether the
// Stripe status is one we accept.
func mapStatus(status stripe.SubscriptionStatus) (models.SubscriptionStatus, bool) {
	local, ok := providerStatuses[status]
	return local, ok
}
