package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines subscription persistence. Implementations must make
// CreateReplacingStaleNew atomic and MarkPendingIfNew a single conditional
// write; everything else is ordinary row access.
type Store interface {
	// GetByID returns the subscription or ErrSubscriptionNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// CountNotDeadByTenant counts the tenant's subscriptions in a
	// not-dead status (active, pending, paused, past_due).
	CountNotDeadByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)

	// ListNotDeadByTenant returns the tenant's live subscriptions.
	ListNotDeadByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Subscription, error)

	// CreateReplacingStaleNew atomically deletes any NEW-status rows for
	// the same user and tenant, then inserts sub. This keeps re-attempted
	// checkouts from accumulating abandoned rows.
	CreateReplacingStaleNew(ctx context.Context, sub *Subscription) error

	// Update persists the full mutable state of sub.
	Update(ctx context.Context, sub *Subscription) error

	// MarkPendingIfNew transitions NEW -> PENDING in one conditional
	// statement, only for provider-managed rows. Returns whether a row was
	// updated. A status already advanced by a webhook is left untouched.
	MarkPendingIfNew(ctx context.Context, id uuid.UUID) (bool, error)

	// ListExpiredLocalActive returns locally-managed active subscriptions
	// whose ends_at has passed.
	ListExpiredLocalActive(ctx context.Context, now time.Time) ([]*Subscription, error)

	// ListActive returns all active subscriptions.
	ListActive(ctx context.Context) ([]*Subscription, error)

	// ListByUserAndStatus returns a user's subscriptions in the given status.
	ListByUserAndStatus(ctx context.Context, userID uuid.UUID, status Status) ([]*Subscription, error)
}

// TrialStore persists consumed-trial bookkeeping rows.
type TrialStore interface {
	// CountByUser returns the user's lifetime consumed trial count.
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)

	// FirstOrCreate records a trial for (user, subscription) if one does
	// not exist yet. Idempotent.
	FirstOrCreate(ctx context.Context, userID, subscriptionID uuid.UUID, trialEndsAt time.Time) error
}
