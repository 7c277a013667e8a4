package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/clipmetrics/billing/svc/plan"
)

// Subscription is the central entity of the billing core. Pricing is a
// snapshot taken from the plan at creation time and is never recomputed,
// so operator price edits do not retroactively reprice existing customers.
type Subscription struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	UserID   uuid.UUID // the subscribing actor

	PlanSlug string
	Status   Status
	Type     Type
	Quantity int // seat count, >= 1

	Pricing plan.Pricing // snapshot, immutable after creation

	TrialEndsAt *time.Time
	EndsAt      *time.Time

	CanceledAtEndOfCycle       bool
	CancellationReason         string
	CancellationAdditionalInfo string

	// Set only for provider-managed subscriptions.
	ProviderName           string
	ProviderSubscriptionID string
	ProviderPriceID        string // provider's price id snapshotted from the plan

	// LastProviderEventAt tracks the newest provider event applied through
	// Update, guarding against out-of-order webhook delivery.
	LastProviderEventAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLocal reports whether the subscription is tracked entirely locally.
func (s *Subscription) IsLocal() bool {
	return s.Type == TypeLocallyManaged
}

// IsActive reports whether the subscription is in the active state.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// HasExpired reports whether ends_at has passed at the given time.
func (s *Subscription) HasExpired(now time.Time) bool {
	return s.EndsAt != nil && now.After(*s.EndsAt)
}

// UserSubscriptionTrial records one consumed trial per (user, subscription)
// pair. Rows are created idempotently and never mutated or deleted; they cap
// how many trials a user may consume across their lifetime.
type UserSubscriptionTrial struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	SubscriptionID uuid.UUID
	TrialEndsAt    time.Time
	CreatedAt      time.Time
}
