package sweeps_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmetrics/billing/svc/plan"
	"github.com/clipmetrics/billing/svc/subscription"
	"github.com/clipmetrics/billing/svc/sweeps"
)

type nopProvider struct{}

func (nopProvider) Name() string { return "nop" }
func (nopProvider) InitSubscriptionCheckout(context.Context, subscription.CheckoutParams) (*subscription.CheckoutSession, error) {
	return &subscription.CheckoutSession{}, nil
}
func (nopProvider) CheckoutMode() subscription.CheckoutMode { return subscription.CheckoutModeRedirect }
func (nopProvider) ChangePlan(context.Context, *subscription.Subscription, plan.Plan, bool) error {
	return nil
}
func (nopProvider) CancelSubscription(context.Context, *subscription.Subscription) error { return nil }
func (nopProvider) DiscardSubscriptionCancellation(context.Context, *subscription.Subscription) error {
	return nil
}
func (nopProvider) UpdateSubscriptionQuantity(context.Context, *subscription.Subscription, int, bool) error {
	return nil
}
func (nopProvider) ReportUsage(context.Context, *subscription.Subscription, int64) error { return nil }
func (nopProvider) SupportedPlanTypes() []plan.Type                                      { return []plan.Type{plan.TypeFlatRate} }
func (nopProvider) SupportsSkippingTrial() bool                                          { return true }

func newSubscriptionService(t *testing.T) *subscription.Service {
	t.Helper()

	catalog, err := plan.NewCatalog(context.Background(), plan.NewMemorySource(plan.Plan{
		Slug:   "basic",
		Name:   "Basic",
		Type:   plan.TypeFlatRate,
		Active: true,
	}))
	require.NoError(t, err)

	return subscription.NewService(
		catalog,
		subscription.NewMemoryStore(),
		subscription.NewMemoryTrialStore(),
		nopProvider{},
		subscription.Config{},
	)
}

func TestNewRunner(t *testing.T) {
	t.Parallel()

	runner, err := sweeps.NewRunner(newSubscriptionService(t), nil, sweeps.Config{
		CleanupInterval: time.Hour,
		SyncInterval:    time.Hour,
	})
	require.NoError(t, err)

	runner.Start()
	assert.NoError(t, runner.Stop())
}

func TestNewRunnerRequiresService(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		_, _ = sweeps.NewRunner(nil, nil, sweeps.Config{
			CleanupInterval: time.Hour,
			SyncInterval:    time.Hour,
		})
	})
}
