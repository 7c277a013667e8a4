package tenant_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmetrics/billing/pkg/lock"
	"github.com/clipmetrics/billing/svc/plan"
	"github.com/clipmetrics/billing/svc/subscription"
	"github.com/clipmetrics/billing/svc/tenant"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// stubProvider accepts every call, optionally failing quantity pushes.
type stubProvider struct {
	mu            sync.Mutex
	failQuantity  bool
	quantityCalls []int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) InitSubscriptionCheckout(context.Context, subscription.CheckoutParams) (*subscription.CheckoutSession, error) {
	return &subscription.CheckoutSession{}, nil
}

func (p *stubProvider) CheckoutMode() subscription.CheckoutMode {
	return subscription.CheckoutModeRedirect
}

func (p *stubProvider) ChangePlan(context.Context, *subscription.Subscription, plan.Plan, bool) error {
	return nil
}

func (p *stubProvider) CancelSubscription(context.Context, *subscription.Subscription) error {
	return nil
}

func (p *stubProvider) DiscardSubscriptionCancellation(context.Context, *subscription.Subscription) error {
	return nil
}

func (p *stubProvider) UpdateSubscriptionQuantity(_ context.Context, _ *subscription.Subscription, quantity int, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failQuantity {
		return errors.New("provider unavailable")
	}
	p.quantityCalls = append(p.quantityCalls, quantity)
	return nil
}

func (p *stubProvider) ReportUsage(context.Context, *subscription.Subscription, int64) error {
	return nil
}

func (p *stubProvider) SupportedPlanTypes() []plan.Type {
	return []plan.Type{plan.TypeFlatRate, plan.TypeSeatBased}
}

func (p *stubProvider) SupportsSkippingTrial() bool { return true }

func (p *stubProvider) calls() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.quantityCalls))
	copy(out, p.quantityCalls)
	return out
}

type coordinatorEnv struct {
	coord    *tenant.Coordinator
	tenants  *tenant.MemoryStore
	subs     *subscription.Service
	subStore *subscription.MemoryStore
	provider *stubProvider
	tenantID uuid.UUID
	ownerID  uuid.UUID
}

// newCoordinatorEnv wires a tenant with one owner and one active
// seat-based subscription (quantity 1, 2-seat cap unless overridden).
func newCoordinatorEnv(t *testing.T, maxUsers int) *coordinatorEnv {
	t.Helper()
	ctx := context.Background()

	seatPlan := plan.Plan{
		Slug:              "team",
		Name:              "Team",
		Type:              plan.TypeSeatBased,
		Active:            true,
		IsChangeable:      true,
		MaxUsersPerTenant: maxUsers,
		ProviderPriceID:   "pri_team",
		Pricing: plan.Pricing{
			Price:    plan.Money{Amount: 500, Currency: "USD"},
			Interval: plan.BillingIntervalMonthly,
		},
	}
	catalog, err := plan.NewCatalog(ctx, plan.NewMemorySource(seatPlan))
	require.NoError(t, err)

	env := &coordinatorEnv{
		tenants:  tenant.NewMemoryStore(),
		subStore: subscription.NewMemoryStore(),
		provider: &stubProvider{},
		tenantID: uuid.New(),
		ownerID:  uuid.New(),
	}

	env.subs = subscription.NewService(
		catalog, env.subStore, subscription.NewMemoryTrialStore(), env.provider,
		subscription.Config{},
		subscription.WithNow(func() time.Time { return testNow }),
		subscription.WithMemberCounter(func(ctx context.Context, tenantID uuid.UUID) (int, error) {
			return env.tenants.CountUsers(ctx, tenantID)
		}),
	)

	require.NoError(t, env.tenants.CreateTenant(ctx, &tenant.Tenant{
		ID:        env.tenantID,
		Name:      "Acme",
		Slug:      "acme",
		OwnerID:   env.ownerID,
		CreatedAt: testNow,
	}))

	sub, _, err := env.subs.Create(ctx, subscription.CreateParams{
		PlanSlug: "team",
		UserID:   env.ownerID,
		TenantID: env.tenantID,
	})
	require.NoError(t, err)
	_, err = env.subs.Update(ctx, sub, subscription.Changes{
		Status: statusPtr(subscription.StatusActive),
	})
	require.NoError(t, err)

	env.coord = tenant.NewCoordinator(env.tenants, env.subs, lock.NewMemoryLocker(),
		tenant.WithNow(func() time.Time { return testNow }))
	return env
}

func (e *coordinatorEnv) newInvitation(t *testing.T) *tenant.Invitation {
	t.Helper()
	inv := &tenant.Invitation{
		ID:        uuid.New(),
		TenantID:  e.tenantID,
		Email:     uuid.NewString() + "@example.com",
		Role:      "member",
		Status:    tenant.InvitationPending,
		ExpiresAt: testNow.AddDate(0, 0, 7),
		CreatedAt: testNow,
	}
	require.NoError(t, e.tenants.CreateInvitation(context.Background(), inv))
	return inv
}

func (e *coordinatorEnv) activeQuantity(t *testing.T) int {
	t.Helper()
	subs, err := e.subStore.ListNotDeadByTenant(context.Background(), e.tenantID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	return subs[0].Quantity
}

func TestCoordinatorAcceptInvitationFillsSeats(t *testing.T) {
	t.Parallel()

	env := newCoordinatorEnv(t, 2)
	ctx := context.Background()

	// First acceptance: quantity tracks the new headcount.
	ok := env.coord.AcceptInvitation(ctx, env.newInvitation(t), uuid.New())
	assert.True(t, ok)

	count, err := env.tenants.CountUsers(ctx, env.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, env.activeQuantity(t))

	// The tenant is now at its 2-seat cap; the next acceptance fails fast
	// and nothing moves.
	ok = env.coord.AcceptInvitation(ctx, env.newInvitation(t), uuid.New())
	assert.False(t, ok)

	count, err = env.tenants.CountUsers(ctx, env.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, env.activeQuantity(t))
}

func TestCoordinatorAcceptInvitationProviderFailure(t *testing.T) {
	t.Parallel()

	env := newCoordinatorEnv(t, 5)
	env.provider.failQuantity = true
	ctx := context.Background()

	ok := env.coord.AcceptInvitation(ctx, env.newInvitation(t), uuid.New())
	assert.False(t, ok)

	// Membership must not be granted when the seat push failed.
	count, err := env.tenants.CountUsers(ctx, env.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, env.activeQuantity(t))
}

func TestCoordinatorAcceptInvitationGuards(t *testing.T) {
	t.Parallel()

	env := newCoordinatorEnv(t, 5)
	ctx := context.Background()

	accepted := env.newInvitation(t)
	require.True(t, env.coord.AcceptInvitation(ctx, accepted, uuid.New()))

	// An already-accepted invitation cannot be replayed.
	got, err := env.tenants.GetInvitation(ctx, accepted.ID)
	require.NoError(t, err)
	assert.False(t, env.coord.AcceptInvitation(ctx, got, uuid.New()))

	// Expired invitations are refused.
	expired := env.newInvitation(t)
	expired.ExpiresAt = testNow.Add(-time.Hour)
	assert.False(t, env.coord.AcceptInvitation(ctx, expired, uuid.New()))
}

func TestCoordinatorConcurrentAcceptance(t *testing.T) {
	t.Parallel()

	const invitations = 5
	env := newCoordinatorEnv(t, 10)
	ctx := context.Background()

	invs := make([]*tenant.Invitation, invitations)
	for i := range invs {
		invs[i] = env.newInvitation(t)
	}

	var wg sync.WaitGroup
	results := make([]bool, invitations)
	for i := range invs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.coord.AcceptInvitation(ctx, invs[i], uuid.New())
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		assert.True(t, ok, "invitation %d", i)
	}

	// The lock serializes acceptances, so the quantity climbs by exactly
	// one per accepted invitation with no double-increments.
	count, err := env.tenants.CountUsers(ctx, env.tenantID)
	require.NoError(t, err)
	assert.Equal(t, invitations+1, count)
	assert.Equal(t, invitations+1, env.activeQuantity(t))

	calls := env.provider.calls()
	require.Len(t, calls, invitations)
	assert.ElementsMatch(t, []int{2, 3, 4, 5, 6}, calls)
}

func TestCoordinatorRemoveUser(t *testing.T) {
	t.Parallel()

	env := newCoordinatorEnv(t, 5)
	ctx := context.Background()

	memberID := uuid.New()
	require.True(t, env.coord.AcceptInvitation(ctx, env.newInvitation(t), memberID))
	require.Equal(t, 2, env.activeQuantity(t))

	// The second member removes the owner, leaving one user.
	ok := env.coord.RemoveUser(ctx, env.tenantID, memberID, env.ownerID)
	assert.True(t, ok)

	count, err := env.tenants.CountUsers(ctx, env.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, env.activeQuantity(t))

	// The last member can never be removed.
	ok = env.coord.RemoveUser(ctx, env.tenantID, env.ownerID, memberID)
	assert.False(t, ok)
}

func TestCoordinatorRemoveUserGuards(t *testing.T) {
	t.Parallel()

	env := newCoordinatorEnv(t, 5)
	ctx := context.Background()

	memberID := uuid.New()
	require.True(t, env.coord.AcceptInvitation(ctx, env.newInvitation(t), memberID))

	// Self-removal is refused.
	assert.False(t, env.coord.RemoveUser(ctx, env.tenantID, memberID, memberID))

	// Removing a non-member is refused.
	assert.False(t, env.coord.RemoveUser(ctx, env.tenantID, env.ownerID, uuid.New()))
}

func TestCoordinatorRemoveUserProviderFailure(t *testing.T) {
	t.Parallel()

	env := newCoordinatorEnv(t, 5)
	ctx := context.Background()

	memberID := uuid.New()
	require.True(t, env.coord.AcceptInvitation(ctx, env.newInvitation(t), memberID))

	env.provider.failQuantity = true
	ok := env.coord.RemoveUser(ctx, env.tenantID, env.ownerID, memberID)
	assert.False(t, ok)

	// Membership stays intact when the seat correction failed.
	count, err := env.tenants.CountUsers(ctx, env.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, env.activeQuantity(t))
}

func TestCoordinatorCanInviteUser(t *testing.T) {
	t.Parallel()

	env := newCoordinatorEnv(t, 2)
	ctx := context.Background()

	assert.True(t, env.coord.CanInviteUser(ctx, env.tenantID))

	require.True(t, env.coord.AcceptInvitation(ctx, env.newInvitation(t), uuid.New()))
	assert.False(t, env.coord.CanInviteUser(ctx, env.tenantID),
		"a tenant at its seat cap cannot issue invitations")
}

func statusPtr(s subscription.Status) *subscription.Status { return &s }
