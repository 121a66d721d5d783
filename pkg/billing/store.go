package billing

import (
	"context"
	"errors"

	"github.com/mediastudio/studio-billing/pkg/database"
	"github.com/mediastudio/studio-billing/pkg/domain"
	"github.com/mediastudio/studio-billing/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists subscription and credits records. Every write is keyed by
// user id so that re-applying a transition leaves the same rows behind.
type Store interface {
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	UpsertCredits(ctx context.Context, credits *models.Credits) error
	UpdateSubscription(ctx context.Context, userID string, fields map[string]any) error
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	FindSubscriptionByCustomerID(ctx context.Context, stripeCustomerID string) (*models.Subscription, error)
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	GetCredits(ctx context.Context, userID string) (*models.Credits, error)
}

var subscriptionColumns = []string{
	"tier",
	"status",
	"stripe_customer_id",
	"stripe_subscription_id",
	"current_period_start",
	"current_period_end",
	"cancel_at_period_end",
	"updated_at",
}

var creditsColumns = []string{
	"balance",
	"monthly_allowance",
	"tier",
	"last_reset_at",
	"updated_at",
}

// GormStore implements Store on top of the service-role database client.
type GormStore struct {
	db *gorm.DB
}

// NewStore creates a store bound to the given database client.
func NewStore(client *database.Client) *GormStore {
	return &GormStore{db: client.DB}
}

// UpsertSubscription inserts the row or overwrites every mutable column.
func (s *GormStore) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(subscriptionColumns),
		}).
		Create(sub).Error
	if err != nil {
		return domain.NewPersistenceError("upsert subscription", err)
	}
	return nil
}

// UpsertCredits inserts the row or overwrites every mutable column.
func (s *GormStore) UpsertCredits(ctx context.Context, credits *models.Credits) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(creditsColumns),
		}).
		Create(credits).Error
	if err != nil {
		return domain.NewPersistenceError("upsert credits", err)
	}
	return nil
}

// UpdateSubscription overwrites the named columns of an existing row.
func (s *GormStore) UpdateSubscription(ctx context.Context, userID string, fields map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Updates(fields)
	if res.Error != nil {
		return domain.NewPersistenceError("update subscription", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewNotFoundError("subscription")
	}
	return nil
}

// FindSubscriptionByStripeID returns the row holding the given subscription reference.
func (s *GormStore) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	return s.findSubscription(ctx, "stripe_subscription_id = ?", stripeSubscriptionID)
}

// FindSubscriptionByCustomerID returns the row holding the given customer reference.
func (s *GormStore) FindSubscriptionByCustomerID(ctx context.Context, stripeCustomerID string) (*models.Subscription, error) {
	return s.findSubscription(ctx, "stripe_customer_id = ?", stripeCustomerID)
}

// GetSubscription returns the user's subscription row.
func (s *GormStore) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return s.findSubscription(ctx, "user_id = ?", userID)
}

// GetCredits returns the user's credits row.
func (s *GormStore) GetCredits(ctx context.Context, userID string) (*models.Credits, error) {
	var credits models.Credits
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&credits).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("credits")
		}
		return nil, domain.NewPersistenceError("get credits", err)
	}
	return &credits, nil
}

func (s *GormStore) findSubscription(ctx context.Context, query string, arg string) (*models.Subscription, error) {
	if arg == "" {
		return nil, domain.NewNotFoundError("subscription")
	}

	var sub models.Subscription
	err := s.db.WithContext(ctx).Where(query, arg).Order("user_id").First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("subscription")
		}
		return nil, domain.NewPersistenceError("find subscription", err)
	}
	return &sub, nil
}
