package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clipmetrics/billing/svc/plan"
)

// CheckoutMode declares how a provider's checkout is presented to the user.
type CheckoutMode string

const (
	// CheckoutModeRedirect sends the user to a provider-hosted page.
	CheckoutModeRedirect CheckoutMode = "redirect"
	// CheckoutModeOverlay embeds the provider's checkout in the page.
	CheckoutModeOverlay CheckoutMode = "overlay"
)

// CheckoutParams describes a checkout session to initialize.
type CheckoutParams struct {
	UserID       uuid.UUID
	UserEmail    string
	Plan         plan.Plan
	Quantity     int
	DiscountCode string
	SkipTrial    bool
	SuccessURL   string
}

// CheckoutSession is the provider's handle for an initialized checkout.
// URL is populated for redirect-mode providers; ClientToken for
// overlay-mode providers.
type CheckoutSession struct {
	URL         string
	ClientToken string
	SessionID   string
	ExpiresAt   time.Time
}

// PaymentProvider abstracts the external billing processor. The core calls
// this interface for every external side effect and treats failures as
// expected operational events, not bugs: service methods surface them as a
// boolean false rather than propagating the error.
//
// Implementations wrap official provider SDKs and absorb provider-specific
// quirks (customer id mapping, webhook formats) internally.
type PaymentProvider interface {
	// Name identifies the provider (e.g. "paddle"), persisted on
	// provider-managed subscriptions.
	Name() string

	// InitSubscriptionCheckout creates a checkout session for the plan.
	InitSubscriptionCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// CheckoutMode declares which presentation the provider supports.
	CheckoutMode() CheckoutMode

	// ChangePlan migrates the provider-side subscription to a new plan.
	ChangePlan(ctx context.Context, sub *Subscription, newPlan plan.Plan, prorated bool) error

	// CancelSubscription schedules cancellation at end of cycle.
	CancelSubscription(ctx context.Context, sub *Subscription) error

	// DiscardSubscriptionCancellation removes a scheduled cancellation.
	DiscardSubscriptionCancellation(ctx context.Context, sub *Subscription) error

	// UpdateSubscriptionQuantity pushes a new seat count to the provider.
	UpdateSubscriptionQuantity(ctx context.Context, sub *Subscription, quantity int, prorated bool) error

	// ReportUsage reports consumed units for usage-based plans.
	ReportUsage(ctx context.Context, sub *Subscription, units int64) error

	// SupportedPlanTypes lists the plan types the provider can bill.
	SupportedPlanTypes() []plan.Type

	// SupportsSkippingTrial reports whether the provider can start a paid
	// subscription without its configured trial period.
	SupportsSkippingTrial() bool
}
