package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/entitlements"
)

func TestSubscriptionDeletedResetsTier(t *testing.T) {
	db := newTestDB(t)
	createPayer(t, db, 42, "flamewalker", "cus_42", "sub_42")
	repo := &countingRepo{Repository: NewRepository(db)}
	svc := NewService(repo)
	ctx := context.Background()

	ev := newEvent(t, "evt_del", "customer.subscription.deleted", subscriptionObject("sub_42", "cus_42", "canceled", `{}`))

	res, err := svc.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubscriptionSynced, res.Outcome)

	payer := loadPayer(t, db, 42)
	assert.Equal(t, string(entitlements.DefaultTier), payer.Tier)
	assert.Empty(t, payer.StripeSubscriptionID)
	assert.Equal(t, "cus_42", payer.StripeCustomerID)

	res, err = svc.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.EqualValues(t, 1, repo.payerWrites.Load(), "replay must not write")

	replayed := loadPayer(t, db, 42)
	assert.Equal(t, payer.Tier, replayed.Tier)
	assert.Equal(t, payer.StripeSubscriptionID, replayed.StripeSubscriptionID)
}

func TestSubscriptionCreatedAppliesDeclaredTier(t *testing.T) {
	db := newTestDB(t)
	createPayer(t, db, 42, "ember", "cus_42", "")
	svc := NewServiceFromDB(db)
	ctx := context.Background()

	change := NormalizedSubscriptionChange{
		Action:         SubscriptionUpsert,
		SubscriptionID: "sub_new",
		CustomerID:     "cus_42",
		Status:         "active",
		DeclaredTier:   entitlements.TierArchitect,
	}
	res, err := svc.ApplyLifecycle(ctx, change)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, entitlements.TierArchitect, res.Tier)

	payer := loadPayer(t, db, 42)
	assert.Equal(t, "architect", payer.Tier)
	assert.Equal(t, "sub_new", payer.StripeSubscriptionID)

	res, err = svc.ApplyLifecycle(ctx, change)
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestSubscriptionTierFromPriceMapping(t *testing.T) {
	db := newTestDB(t)
	createPayer(t, db, 1, "ember", "cus_1", "")
	require.NoError(t, db.Create(&models.TierPriceMapping{Provider: models.BillingProviderStripe, ProviderPriceID: "price_live_harm", Tier: "harmonizer", IsActive: true}).Error)
	svc := NewServiceFromDB(db)

	res, err := svc.ApplyLifecycle(context.Background(), NormalizedSubscriptionChange{
		Action:         SubscriptionUpsert,
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		Status:         "trialing",
		PriceRefs:      []string{"price_unmapped", "price_live_harm", "price_flamewalker_monthly"},
	})
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierHarmonizer, res.Tier)
	assert.Equal(t, "harmonizer", loadPayer(t, db, 1).Tier)
}

func TestSubscriptionTierFromCatalogPrice(t *testing.T) {
	db := newTestDB(t)
	createPayer(t, db, 2, "ember", "cus_2", "")
	svc := NewServiceFromDB(db)

	res, err := svc.ApplyLifecycle(context.Background(), NormalizedSubscriptionChange{
		Action:         SubscriptionUpsert,
		SubscriptionID: "sub_2",
		CustomerID:     "cus_2",
		Status:         "active",
		PriceRefs:      []string{"price_flamewalker_monthly"},
	})
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierFlamewalker, res.Tier)
}

func TestSubscriptionWithoutResolvableTierKeepsTier(t *testing.T) {
	db := newTestDB(t)
	createPayer(t, db, 3, "harmonizer", "cus_3", "sub_old")
	svc := NewServiceFromDB(db)

	res, err := svc.ApplyLifecycle(context.Background(), NormalizedSubscriptionChange{
		Action:         SubscriptionUpsert,
		SubscriptionID: "sub_3",
		CustomerID:     "cus_3",
		Status:         "active",
		PriceRefs:      []string{"price_mystery"},
	})
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierHarmonizer, res.Tier)
	assert.Equal(t, "sub_3", loadPayer(t, db, 3).StripeSubscriptionID)
}

func TestSubscriptionTerminalAndIncompleteStatuses(t *testing.T) {
	tests := []struct {
		status   string
		wantTier string
	}{
		{status: "canceled", wantTier: "ember"},
		{status: "unpaid", wantTier: "ember"},
		{status: "incomplete_expired", wantTier: "ember"},
		{status: "paused", wantTier: "ember"},
		{status: "incomplete", wantTier: "flamewalker"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			db := newTestDB(t)
			createPayer(t, db, 9, "flamewalker", "cus_9", "sub_9")
			svc := NewServiceFromDB(db)

			_, err := svc.ApplyLifecycle(context.Background(), NormalizedSubscriptionChange{
				Action:         SubscriptionUpsert,
				SubscriptionID: "sub_9",
				CustomerID:     "cus_9",
				Status:         tt.status,
				DeclaredTier:   entitlements.TierFlamewalker,
			})
			require.NoError(t, err)

			payer := loadPayer(t, db, 9)
			assert.Equal(t, tt.wantTier, payer.Tier)
			assert.Equal(t, "sub_9", payer.StripeSubscriptionID)
		})
	}
}

func TestSupersededSubscriptionDeletionIsIgnored(t *testing.T) {
	db := newTestDB(t)
	createPayer(t, db, 4, "architect", "cus_4", "sub_current")
	svc := NewServiceFromDB(db)

	res, err := svc.ApplyLifecycle(context.Background(), NormalizedSubscriptionChange{
		Action:         SubscriptionDelete,
		SubscriptionID: "sub_previous",
		CustomerID:     "cus_4",
		Status:         "canceled",
	})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	payer := loadPayer(t, db, 4)
	assert.Equal(t, "architect", payer.Tier)
	assert.Equal(t, "sub_current", payer.StripeSubscriptionID)
}

func TestSubscriptionFallsBackToMetadataPayer(t *testing.T) {
	db := newTestDB(t)
	createPayer(t, db, 11, "ember", "", "")
	svc := NewServiceFromDB(db)

	ev := newEvent(t, "evt_sub_meta", "customer.subscription.created", subscriptionObject("sub_11", "cus_11", "active", `{"user_id":"11","tier":"flamewalker"}`))
	res, err := svc.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubscriptionSynced, res.Outcome)

	payer := loadPayer(t, db, 11)
	assert.Equal(t, "flamewalker", payer.Tier)
	assert.Equal(t, "cus_11", payer.StripeCustomerID)
	assert.Equal(t, "sub_11", payer.StripeSubscriptionID)
}

func TestSubscriptionForUnknownPayer(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db)
	ctx := context.Background()

	_, err := svc.ApplyLifecycle(ctx, NormalizedSubscriptionChange{
		Action:         SubscriptionUpsert,
		SubscriptionID: "sub_x",
		CustomerID:     "cus_nobody",
		Status:         "active",
	})
	assert.True(t, errors.Is(err, ErrPayerNotFound))

	ev := newEvent(t, "evt_nobody", "customer.subscription.updated", subscriptionObject("sub_x", "cus_nobody", "active", `{}`))
	res, err := svc.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestLifecycleInvalidatesCacheOnlyOnChange(t *testing.T) {
	db := newTestDB(t)
	createPayer(t, db, 12, "ember", "cus_12", "")
	inv := &recordingInvalidator{}
	svc := NewServiceFromDB(db, WithInvalidator(inv))
	ctx := context.Background()

	change := NormalizedSubscriptionChange{
		Action:         SubscriptionUpsert,
		SubscriptionID: "sub_12",
		CustomerID:     "cus_12",
		Status:         "active",
		DeclaredTier:   entitlements.TierHarmonizer,
	}
	_, err := svc.ApplyLifecycle(ctx, change)
	require.NoError(t, err)
	_, err = svc.ApplyLifecycle(ctx, change)
	require.NoError(t, err)

	assert.Equal(t, []uint{12}, inv.calls())
}
