package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/clipmetrics/billing/pkg/logger"
	"github.com/clipmetrics/billing/svc/plan"
)

// CurrentQuantity computes the subscription's correct seat count: the
// tenant's live user count for seat-based plans, a constant 1 otherwise.
func (s *Service) CurrentQuantity(ctx context.Context, sub *Subscription) (int, error) {
	pl, err := s.catalog.Get(sub.PlanSlug)
	if err != nil {
		return 0, err
	}
	if pl.Type != plan.TypeSeatBased {
		return 1, nil
	}

	n, err := s.memberCount(ctx, sub.TenantID)
	if err != nil {
		return 0, fmt.Errorf("count tenant members: %w", err)
	}
	if n < 1 {
		n = 1
	}
	return n, nil
}

// UpdateQuantity pushes a new seat count to the subscription. Non-seat
// plans are a successful no-op. Locally-managed subscriptions are updated
// directly; provider-managed ones go through the provider first, and a
// provider failure leaves local state untouched and returns false.
func (s *Service) UpdateQuantity(ctx context.Context, sub *Subscription, quantity int) (bool, error) {
	if quantity < 1 {
		return false, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	pl, err := s.catalog.Get(sub.PlanSlug)
	if err != nil {
		return false, err
	}
	if pl.Type != plan.TypeSeatBased {
		return true, nil
	}
	if quantity == sub.Quantity {
		return true, nil
	}

	if !sub.IsLocal() {
		if err := s.provider.UpdateSubscriptionQuantity(ctx, sub, quantity, s.cfg.ProrationEnabled); err != nil {
			s.log.ErrorContext(ctx, "provider quantity update failed",
				logger.Component("subscription"),
				logger.SubscriptionID(sub.ID),
				logger.Quantity(quantity),
				logger.Error(err))
			return false, nil
		}
	}

	sub.Quantity = quantity
	sub.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, sub); err != nil {
		return false, err
	}
	return true, nil
}

// SyncQuantities reconciles seat counts across all live subscriptions.
// The sweep only raises: a subscription billing fewer seats than the
// tenant uses is corrected, one billing more is left alone so that
// downgrades stay an explicit human decision.
func (s *Service) SyncQuantities(ctx context.Context) error {
	subs, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		want, err := s.CurrentQuantity(ctx, sub)
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		if want <= sub.Quantity {
			continue
		}

		ok, err := s.UpdateQuantity(ctx, sub, want)
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		if !ok {
			errs = append(errs, fmt.Errorf("subscription %s: provider rejected quantity %d", sub.ID, want))
		}
	}
	return errors.Join(errs...)
}
