package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clipmetrics/billing/pkg/lock"
	"github.com/clipmetrics/billing/pkg/logger"
	"github.com/clipmetrics/billing/svc/plan"
	"github.com/clipmetrics/billing/svc/subscription"
)

// Coordinator serializes membership mutations per tenant. Adding or
// removing a user must read the current member count, push the corrected
// seat quantity to the payment provider, and mutate membership without
// another change for the same tenant interleaving; a per-tenant lease
// lock makes that read-push-write sequence atomic while leaving different
// tenants fully parallel.
//
// Failure policy: operational failures (lock contention, provider
// rejection, store errors) are logged and surfaced as false. Callers
// retry at the application level.
type Coordinator struct {
	store  Store
	subs   *subscription.Service
	locker lock.Locker
	log    *slog.Logger
	now    func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(fn func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCoordinator creates the membership coordinator.
// Panics if required dependencies are nil to fail fast during initialization.
func NewCoordinator(store Store, subs *subscription.Service, locker lock.Locker, opts ...CoordinatorOption) *Coordinator {
	if store == nil {
		panic("tenant: store is required")
	}
	if subs == nil {
		panic("tenant: subscription service is required")
	}
	if locker == nil {
		panic("tenant: locker is required")
	}

	c := &Coordinator{
		store:  store,
		subs:   subs,
		locker: locker,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func membershipLockKey(tenantID uuid.UUID) string {
	return "tenant:membership:" + tenantID.String()
}

// DoTenantSubscriptionsAllowAddingUser reports whether every seat-capped
// live subscription still has room for one more member. Lookup failures
// are logged and treated as "no room".
func (c *Coordinator) DoTenantSubscriptionsAllowAddingUser(ctx context.Context, tenantID uuid.UUID) bool {
	subs, err := c.subs.ListNotDeadByTenant(ctx, tenantID)
	if err != nil {
		c.log.ErrorContext(ctx, "failed to list tenant subscriptions",
			logger.Component("tenant"), logger.TenantID(tenantID), logger.Error(err))
		return false
	}

	count, err := c.store.CountUsers(ctx, tenantID)
	if err != nil {
		c.log.ErrorContext(ctx, "failed to count tenant users",
			logger.Component("tenant"), logger.TenantID(tenantID), logger.Error(err))
		return false
	}

	for _, sub := range subs {
		pl, err := c.subs.PlanOf(sub)
		if err != nil {
			c.log.ErrorContext(ctx, "failed to resolve subscription plan",
				logger.Component("tenant"), logger.SubscriptionID(sub.ID), logger.Error(err))
			return false
		}
		if pl.HasSeatLimit() && count >= pl.MaxUsersPerTenant {
			return false
		}
	}
	return true
}

// CanInviteUser mirrors the capacity check at invitation-creation time.
// Advisory only: capacity may change between invite and accept, so the
// authoritative check runs again inside AcceptInvitation.
func (c *Coordinator) CanInviteUser(ctx context.Context, tenantID uuid.UUID) bool {
	return c.DoTenantSubscriptionsAllowAddingUser(ctx, tenantID)
}

// AcceptInvitation adds the user to the invitation's tenant. Under the
// per-tenant lock it raises seat quantities to cover the new member and
// only then grants membership; a provider failure aborts before any
// membership change so billing and membership never diverge.
func (c *Coordinator) AcceptInvitation(ctx context.Context, inv *Invitation, userID uuid.UUID) bool {
	if !inv.IsAcceptable(c.now()) {
		return false
	}

	// Fail fast on a full tenant before taking the lock; the check is
	// repeated under the lock via the quantity push.
	if !c.DoTenantSubscriptionsAllowAddingUser(ctx, inv.TenantID) {
		return false
	}

	err := lock.WithLock(ctx, c.locker, membershipLockKey(inv.TenantID), func(ctx context.Context) error {
		count, err := c.store.CountUsers(ctx, inv.TenantID)
		if err != nil {
			return fmt.Errorf("count tenant users: %w", err)
		}
		target := count + 1

		if err := c.pushSeatQuantities(ctx, inv.TenantID, target, true); err != nil {
			return err
		}

		return c.store.AttachUser(ctx, AttachUserParams{
			TenantID:     inv.TenantID,
			UserID:       userID,
			Role:         inv.Role,
			InvitationID: inv.ID,
			AcceptedAt:   c.now().UTC(),
		})
	})
	if err != nil {
		c.log.ErrorContext(ctx, "invitation acceptance failed",
			logger.Component("tenant"),
			logger.TenantID(inv.TenantID),
			logger.UserID(userID),
			logger.Error(err))
		return false
	}
	return true
}

// CanRemoveUser reports whether the actor may remove the user: never
// themselves, and never the tenant's last member.
func (c *Coordinator) CanRemoveUser(ctx context.Context, tenantID, actorID, userID uuid.UUID) bool {
	if actorID == userID {
		return false
	}

	isMember, err := c.store.IsMember(ctx, tenantID, userID)
	if err != nil || !isMember {
		return false
	}

	count, err := c.store.CountUsers(ctx, tenantID)
	if err != nil {
		c.log.ErrorContext(ctx, "failed to count tenant users",
			logger.Component("tenant"), logger.TenantID(tenantID), logger.Error(err))
		return false
	}
	return count > 1
}

// RemoveUser detaches the user from the tenant under the same per-tenant
// lock discipline as acceptance: seat quantities are corrected downward
// first, and any provider failure aborts before membership is touched.
func (c *Coordinator) RemoveUser(ctx context.Context, tenantID, actorID, userID uuid.UUID) bool {
	if !c.CanRemoveUser(ctx, tenantID, actorID, userID) {
		return false
	}

	err := lock.WithLock(ctx, c.locker, membershipLockKey(tenantID), func(ctx context.Context) error {
		count, err := c.store.CountUsers(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("count tenant users: %w", err)
		}
		if count <= 1 {
			return fmt.Errorf("tenant %s would be left without members", tenantID)
		}
		target := count - 1

		if err := c.pushSeatQuantities(ctx, tenantID, target, false); err != nil {
			return err
		}

		return c.store.DetachUser(ctx, tenantID, userID)
	})
	if err != nil {
		c.log.ErrorContext(ctx, "user removal failed",
			logger.Component("tenant"),
			logger.TenantID(tenantID),
			logger.UserID(userID),
			logger.Error(err))
		return false
	}
	return true
}

// pushSeatQuantities brings every live seat-based subscription to the
// target quantity. raiseOnly limits the push to subscriptions currently
// billing fewer seats than the target; removal pushes any mismatch.
func (c *Coordinator) pushSeatQuantities(ctx context.Context, tenantID uuid.UUID, target int, raiseOnly bool) error {
	subs, err := c.subs.ListNotDeadByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list tenant subscriptions: %w", err)
	}

	for _, sub := range subs {
		pl, err := c.subs.PlanOf(sub)
		if err != nil {
			return fmt.Errorf("resolve plan for subscription %s: %w", sub.ID, err)
		}
		if pl.Type != plan.TypeSeatBased {
			continue
		}
		if raiseOnly && sub.Quantity >= target {
			continue
		}
		if !raiseOnly && sub.Quantity == target {
			continue
		}

		ok, err := c.subs.UpdateQuantity(ctx, sub, target)
		if err != nil {
			return fmt.Errorf("update quantity for subscription %s: %w", sub.ID, err)
		}
		if !ok {
			return fmt.Errorf("provider rejected quantity %d for subscription %s", target, sub.ID)
		}
	}
	return nil
}
