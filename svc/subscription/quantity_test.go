package subscription_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmetrics/billing/svc/subscription"
)

func TestServiceCurrentQuantity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	members := 5
	env := newTestEnv(t, subscription.Config{}, subscription.WithMemberCounter(
		func(context.Context, uuid.UUID) (int, error) { return members, nil },
	))

	seatSub, _, err := env.svc.Create(ctx, subscription.CreateParams{
		PlanSlug: "team", UserID: uuid.New(), TenantID: uuid.New(),
	})
	require.NoError(t, err)

	flatSub, _, err := env.svc.Create(ctx, subscription.CreateParams{
		PlanSlug: "pro", UserID: uuid.New(), TenantID: uuid.New(),
	})
	require.NoError(t, err)

	n, err := env.svc.CurrentQuantity(ctx, seatSub)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Flat-rate plans always bill a single unit regardless of headcount.
	n, err = env.svc.CurrentQuantity(ctx, flatSub)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A tenant can never bill zero seats.
	members = 0
	n, err = env.svc.CurrentQuantity(ctx, seatSub)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestServiceUpdateQuantity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("non seat plan is a successful no-op", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, subscription.Config{})
		sub, _, err := env.svc.Create(ctx, subscription.CreateParams{
			PlanSlug: "pro", UserID: uuid.New(), TenantID: uuid.New(),
		})
		require.NoError(t, err)

		ok, err := env.svc.UpdateQuantity(ctx, sub, 7)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, env.provider.quantityCalls)

		got, err := env.store.GetByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Quantity)
	})

	t.Run("provider-managed pushes to the provider first", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, subscription.Config{ProrationEnabled: true})
		sub, _, err := env.svc.Create(ctx, subscription.CreateParams{
			PlanSlug: "team", UserID: uuid.New(), TenantID: uuid.New(), Quantity: 2,
		})
		require.NoError(t, err)

		ok, err := env.svc.UpdateQuantity(ctx, sub, 4)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []int{4}, env.provider.quantityCalls)

		got, err := env.store.GetByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, got.Quantity)
	})

	t.Run("provider failure aborts local write", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, subscription.Config{})
		env.provider.failQuantity = true
		sub, _, err := env.svc.Create(ctx, subscription.CreateParams{
			PlanSlug: "team", UserID: uuid.New(), TenantID: uuid.New(), Quantity: 2,
		})
		require.NoError(t, err)

		ok, err := env.svc.UpdateQuantity(ctx, sub, 4)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := env.store.GetByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Quantity)
	})

	t.Run("local seat subscription skips the provider", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, subscription.Config{})
		endsAt := testNow.AddDate(0, 1, 0)
		sub, _, err := env.svc.Create(ctx, subscription.CreateParams{
			PlanSlug: "team", UserID: uuid.New(), TenantID: uuid.New(),
			Local: true, EndsAt: &endsAt, Quantity: 2,
		})
		require.NoError(t, err)

		ok, err := env.svc.UpdateQuantity(ctx, sub, 6)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, env.provider.quantityCalls)

		got, err := env.store.GetByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, got.Quantity)
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, subscription.Config{})
		sub, _, err := env.svc.Create(ctx, subscription.CreateParams{
			PlanSlug: "team", UserID: uuid.New(), TenantID: uuid.New(),
		})
		require.NoError(t, err)

		_, err = env.svc.UpdateQuantity(ctx, sub, 0)
		require.ErrorIs(t, err, subscription.ErrInvalidQuantity)
	})
}

func TestServiceSyncQuantities(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	counts := map[uuid.UUID]int{}
	env := newTestEnv(t, subscription.Config{}, subscription.WithMemberCounter(
		func(_ context.Context, tenantID uuid.UUID) (int, error) {
			return counts[tenantID], nil
		},
	))

	underTenant, overTenant := uuid.New(), uuid.New()

	under, _, err := env.svc.Create(ctx, subscription.CreateParams{
		PlanSlug: "team", UserID: uuid.New(), TenantID: underTenant, Quantity: 2,
	})
	require.NoError(t, err)
	over, _, err := env.svc.Create(ctx, subscription.CreateParams{
		PlanSlug: "team", UserID: uuid.New(), TenantID: overTenant, Quantity: 5,
	})
	require.NoError(t, err)

	for _, sub := range []*subscription.Subscription{under, over} {
		_, err = env.svc.Update(ctx, sub, subscription.Changes{
			Status: statusPtr(subscription.StatusActive),
		})
		require.NoError(t, err)
	}

	counts[underTenant] = 4 // billing 2, should be 4
	counts[overTenant] = 3  // billing 5, left alone

	require.NoError(t, env.svc.SyncQuantities(ctx))

	got, err := env.store.GetByID(ctx, under.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity)

	got, err = env.store.GetByID(ctx, over.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity, "sync never lowers a billed quantity")

	assert.Equal(t, []int{4}, env.provider.quantityCalls)
}
