package subscription

import "github.com/samber/lo"

// Status represents the lifecycle state of a subscription.
type Status string

const (
	// StatusNew is the initial state of a provider-managed subscription,
	// before checkout completes.
	StatusNew Status = "new"
	// StatusPendingUserVerification gates local trials behind phone
	// verification when the deployment requires it.
	StatusPendingUserVerification Status = "pending_user_verification"
	// StatusPending is a provider-managed subscription whose checkout
	// finished but whose first payment is not yet confirmed.
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusPaused   Status = "paused"
	StatusCanceled Status = "canceled"
	StatusInactive Status = "inactive"
)

// NotDeadStatuses are the states in which a subscription still counts
// against the one-live-subscription-per-tenant rule.
var NotDeadStatuses = []Status{StatusActive, StatusPending, StatusPaused, StatusPastDue}

// DeadStatuses are terminal states.
var DeadStatuses = []Status{StatusCanceled, StatusInactive}

// IsDead reports whether the status is terminal.
func (s Status) IsDead() bool {
	return lo.Contains(DeadStatuses, s)
}

// IsNotDead reports whether the status counts as a live subscription for
// the per-tenant uniqueness rule. Note this excludes NEW and
// PENDING_USER_VERIFICATION: a half-finished checkout does not block the
// tenant from retrying.
func (s Status) IsNotDead() bool {
	return lo.Contains(NotDeadStatuses, s)
}

// Type distinguishes where a subscription's source of truth lives.
type Type string

const (
	// TypeProviderManaged mirrors a subscription owned by the external
	// payment provider.
	TypeProviderManaged Type = "payment_provider_managed"
	// TypeLocallyManaged is tracked entirely in local state, used for
	// payment-free trials. Always carries a computed ends_at.
	TypeLocallyManaged Type = "locally_managed"
)
