package billing

import (
	"context"
	"testing"
	"time"

	"github.com/mediastudio/studio-billing/pkg/domain"
	"github.com/mediastudio/studio-billing/pkg/models"
	"github.com/mediastudio/studio-billing/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *GormStore {
	return NewStore(testutil.SetupTestDB(t))
}

func TestStore_UpsertSubscriptionOverwrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	userID := testutil.UserID()
	at := testutil.EventTime

	require.NoError(t, store.UpsertSubscription(ctx, &models.Subscription{
		UserID:               userID,
		Tier:                 models.TierStarter,
		Status:               models.StatusActive,
		StripeCustomerID:     stringPtr("cus_1"),
		StripeSubscriptionID: stringPtr("sub_1"),
		CancelAtPeriodEnd:    true,
		UpdatedAt:            at,
	}))

	later := at.Add(time.Hour)
	require.NoError(t, store.UpsertSubscription(ctx, &models.Subscription{
		UserID:           userID,
		Tier:             models.TierPro,
		Status:           models.StatusPastDue,
		StripeCustomerID: stringPtr("cus_1"),
		UpdatedAt:        later,
	}))

	got, err := store.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.TierPro, got.Tier)
	assert.Equal(t, models.StatusPastDue, got.Status)
	assert.Nil(t, got.StripeSubscriptionID)
	assert.False(t, got.CancelAtPeriodEnd)
	assert.WithinDuration(t, later, got.UpdatedAt, 0)
}

func TestStore_UpsertCreditsSetsBalance(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	userID := testutil.UserID()

	require.NoError(t, store.UpsertCredits(ctx, &models.Credits{UserID: userID, Balance: 3, MonthlyAllowance: 100, Tier: models.TierStarter, UpdatedAt: testutil.EventTime}))
	require.NoError(t, store.UpsertCredits(ctx, &models.Credits{UserID: userID, Balance: 100, MonthlyAllowance: 100, Tier: models.TierStarter, UpdatedAt: testutil.EventTime}))

	got, err := store.GetCredits(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Balance)

	var count int64
	require.NoError(t, store.db.Model(&models.Credits{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStore_UpdateSubscription(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	userID := testutil.UserID()

	require.NoError(t, store.UpsertSubscription(ctx, &models.Subscription{
		UserID:    userID,
		Tier:      models.TierPro,
		Status:    models.StatusActive,
		UpdatedAt: testutil.EventTime,
	}))

	require.NoError(t, store.UpdateSubscription(ctx, userID, map[string]any{"status": models.StatusPastDue}))

	got, err := store.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPastDue, got.Status)
	assert.Equal(t, models.TierPro, got.Tier)
}

func TestStore_UpdateSubscriptionMissing(t *testing.T) {
	store := setupTestStore(t)

	err := store.UpdateSubscription(context.Background(), "nobody", map[string]any{"status": models.StatusPastDue})
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_FindByReferences(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	userID := testutil.UserID()
	customerID := testutil.StripeID("cus")
	subscriptionID := testutil.StripeID("sub")

	require.NoError(t, store.UpsertSubscription(ctx, &models.Subscription{
		UserID:               userID,
		Tier:                 models.TierStarter,
		Status:               models.StatusActive,
		StripeCustomerID:     &customerID,
		StripeSubscriptionID: &subscriptionID,
		UpdatedAt:            testutil.EventTime,
	}))

	bySub, err := store.FindSubscriptionByStripeID(ctx, subscriptionID)
	require.NoError(t, err)
	assert.Equal(t, userID, bySub.UserID)

	byCustomer, err := store.FindSubscriptionByCustomerID(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, userID, byCustomer.UserID)

	_, err = store.FindSubscriptionByStripeID(ctx, "sub_missing")
	assert.True(t, domain.IsNotFound(err))

	_, err = store.FindSubscriptionByCustomerID(ctx, "")
	assert.True(t, domain.IsNotFound(err))

	_, err = store.GetCredits(ctx, userID)
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_PersistenceErrorAfterClose(t *testing.T) {
	client := testutil.SetupTestDB(t)
	store := NewStore(client)
	require.NoError(t, client.Close())

	err := store.UpsertCredits(context.Background(), &models.Credits{UserID: "u", Tier: models.TierFree, UpdatedAt: testutil.EventTime})
	assert.True(t, domain.IsPersistence(err))
}
