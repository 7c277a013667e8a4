package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/clipmetrics/billing/pkg/logger"
	"github.com/clipmetrics/billing/svc/plan"
)

// MemberCounterFunc returns the tenant's current user count. Must be fast;
// it is consulted on every seat-quantity computation.
type MemberCounterFunc func(ctx context.Context, tenantID uuid.UUID) (int, error)

// PhoneVerifiedFunc reports whether a user has completed phone verification.
type PhoneVerifiedFunc func(ctx context.Context, userID uuid.UUID) (bool, error)

// Service owns the subscription lifecycle. All status and end-date writes
// after creation go through Update so event emission always matches
// persisted state; no other code path may touch those columns.
type Service struct {
	catalog  *plan.Catalog
	store    Store
	trials   TrialStore
	provider PaymentProvider
	cfg      Config
	log      *slog.Logger

	memberCount   MemberCounterFunc
	phoneVerified PhoneVerifiedFunc
	now           func() time.Time
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithLogger sets the service logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMemberCounter sets the tenant user counter collaborator.
func WithMemberCounter(fn MemberCounterFunc) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.memberCount = fn
		}
	}
}

// WithPhoneVerified sets the phone verification collaborator.
func WithPhoneVerified(fn PhoneVerifiedFunc) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.phoneVerified = fn
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService creates the subscription service.
// Panics if required dependencies are nil to fail fast during initialization.
func NewService(catalog *plan.Catalog, store Store, trials TrialStore, provider PaymentProvider, cfg Config, opts ...ServiceOption) *Service {
	if catalog == nil {
		panic("subscription: plan catalog is required")
	}
	if store == nil {
		panic("subscription: store is required")
	}
	if trials == nil {
		panic("subscription: trial store is required")
	}
	if provider == nil {
		panic("subscription: payment provider is required")
	}

	s := &Service{
		catalog:  catalog,
		store:    store,
		trials:   trials,
		provider: provider,
		cfg:      cfg,
		log:      slog.Default(),
		memberCount: func(context.Context, uuid.UUID) (int, error) {
			return 1, nil
		},
		phoneVerified: func(context.Context, uuid.UUID) (bool, error) {
			return true, nil
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListNotDeadByTenant returns the tenant's live subscriptions.
func (s *Service) ListNotDeadByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Subscription, error) {
	return s.store.ListNotDeadByTenant(ctx, tenantID)
}

// PlanOf resolves the subscription's plan, including inactive ones:
// existing subscriptions keep working after their plan is retired.
func (s *Service) PlanOf(sub *Subscription) (plan.Plan, error) {
	return s.catalog.Get(sub.PlanSlug)
}

// CreateParams describes a subscription to create.
type CreateParams struct {
	PlanSlug string
	UserID   uuid.UUID
	TenantID uuid.UUID
	Quantity int

	// Local marks the subscription as locally managed (payment-free
	// trial); it never touches the payment provider.
	Local bool

	// EndsAt overrides the computed end date for local subscriptions.
	EndsAt *time.Time

	// Provider identifiers, for provider-managed subscriptions created
	// from an already-known external subscription.
	ProviderSubscriptionID string
}

// CanCreateSubscription reports whether the tenant may start a new
// subscription: only tenants with zero live subscriptions qualify.
func (s *Service) CanCreateSubscription(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	n, err := s.store.CountNotDeadByTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Create builds and persists a new subscription, snapshotting the plan's
// pricing. Stale NEW rows for the same user and tenant are removed in the
// same transaction so abandoned checkouts never accumulate.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Subscription, []Event, error) {
	pl, err := s.catalog.FindBySlug(params.PlanSlug)
	if err != nil {
		return nil, nil, err
	}

	ok, err := s.CanCreateSubscription(ctx, params.TenantID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: tenant %s", ErrCreationNotAllowed, params.TenantID)
	}

	quantity := params.Quantity
	if quantity < 1 {
		quantity = 1
	}

	now := s.now().UTC()
	sub := &Subscription{
		ID:        uuid.New(),
		TenantID:  params.TenantID,
		UserID:    params.UserID,
		PlanSlug:  pl.Slug,
		Quantity:  quantity,
		Pricing:   pl.Pricing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if params.Local {
		sub.Type = TypeLocallyManaged

		endsAt, err := s.localEndsAt(pl, params.EndsAt, now)
		if err != nil {
			return nil, nil, err
		}
		sub.EndsAt = &endsAt
		if pl.HasTrial {
			sub.TrialEndsAt = &endsAt
		}

		verify, err := s.ShouldVerifyPhoneForTrial(ctx, params.UserID)
		if err != nil {
			return nil, nil, err
		}
		if verify {
			sub.Status = StatusPendingUserVerification
		} else {
			sub.Status = StatusActive
		}
	} else {
		sub.Type = TypeProviderManaged
		sub.Status = StatusNew
		sub.EndsAt = params.EndsAt
		sub.ProviderName = s.provider.Name()
		sub.ProviderSubscriptionID = params.ProviderSubscriptionID
		sub.ProviderPriceID = pl.ProviderPriceID
	}

	if err := s.store.CreateReplacingStaleNew(ctx, sub); err != nil {
		return nil, nil, err
	}

	if err := s.recordTrialIfActive(ctx, sub); err != nil {
		return nil, nil, err
	}

	// Provider-managed subscriptions fire Subscribed from the provider's
	// webhook confirmation, not here; dispatching from both paths would
	// double the event.
	var events []Event
	if sub.IsLocal() && sub.IsActive() {
		events = append(events, Subscribed{Subscription: sub})
	}

	return sub, events, nil
}

func (s *Service) localEndsAt(pl plan.Plan, override *time.Time, now time.Time) (time.Time, error) {
	if override != nil {
		return override.UTC(), nil
	}
	if pl.HasTrial && pl.TrialDays > 0 {
		return pl.TrialEndsAt(now), nil
	}
	return time.Time{}, fmt.Errorf("%w: plan %s", ErrLocalSubscriptionEndsAt, pl.Slug)
}

// SetAsPending advances a provider-managed subscription from NEW to
// PENDING after checkout completes. The write is conditional on the
// current status so a webhook that already advanced the subscription
// further is never clobbered.
func (s *Service) SetAsPending(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.store.MarkPendingIfNew(ctx, id)
}

// Changes describes a mutation applied through Update. Nil fields are left
// untouched.
type Changes struct {
	Status                     *Status
	EndsAt                     *time.Time
	TrialEndsAt                *time.Time
	CanceledAtEndOfCycle       *bool
	CancellationReason         *string
	CancellationAdditionalInfo *string

	// EventAt is the provider's event timestamp. When set, changes older
	// than the last applied provider event are ignored, protecting against
	// out-of-order webhook delivery. Zero keeps the unconditional behavior.
	EventAt time.Time
}

// Update is the single mutation funnel for status and end-date changes.
// It captures the prior state, persists the changes, refreshes trial
// bookkeeping, and returns the domain events implied by the transition.
func (s *Service) Update(ctx context.Context, sub *Subscription, ch Changes) ([]Event, error) {
	if !ch.EventAt.IsZero() && !sub.LastProviderEventAt.IsZero() && !ch.EventAt.After(sub.LastProviderEventAt) {
		s.log.InfoContext(ctx, "ignoring stale provider event",
			logger.Component("subscription"),
			logger.SubscriptionID(sub.ID),
			slog.Time("event_at", ch.EventAt),
			slog.Time("last_applied_at", sub.LastProviderEventAt))
		return nil, nil
	}

	oldStatus := sub.Status
	oldEndsAt := sub.EndsAt

	if ch.Status != nil {
		sub.Status = *ch.Status
	}
	if ch.EndsAt != nil {
		sub.EndsAt = ch.EndsAt
	}
	if ch.TrialEndsAt != nil {
		sub.TrialEndsAt = ch.TrialEndsAt
	}
	if ch.CanceledAtEndOfCycle != nil {
		sub.CanceledAtEndOfCycle = *ch.CanceledAtEndOfCycle
	}
	if ch.CancellationReason != nil {
		sub.CancellationReason = *ch.CancellationReason
	}
	if ch.CancellationAdditionalInfo != nil {
		sub.CancellationAdditionalInfo = *ch.CancellationAdditionalInfo
	}
	if !ch.EventAt.IsZero() {
		sub.LastProviderEventAt = ch.EventAt
	}
	sub.UpdatedAt = s.now().UTC()

	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}

	if err := s.recordTrialIfActive(ctx, sub); err != nil {
		return nil, err
	}

	var events []Event
	if oldStatus != StatusActive && sub.Status == StatusActive {
		events = append(events, Subscribed{Subscription: sub})
	}
	if oldStatus != StatusCanceled && sub.Status == StatusCanceled {
		events = append(events, Canceled{Subscription: sub})
	}
	if oldEndsAt != nil && sub.EndsAt != nil && sub.EndsAt.After(*oldEndsAt) {
		events = append(events, Renewed{
			Subscription: sub,
			OldEndsAt:    *oldEndsAt,
			NewEndsAt:    *sub.EndsAt,
		})
	}

	return events, nil
}

// recordTrialIfActive keeps trial bookkeeping in sync: an active
// subscription with a trial end date consumes one of the user's trials.
// FirstOrCreate makes repeated calls harmless.
func (s *Service) recordTrialIfActive(ctx context.Context, sub *Subscription) error {
	if sub.Status != StatusActive || sub.TrialEndsAt == nil {
		return nil
	}
	return s.trials.FirstOrCreate(ctx, sub.UserID, sub.ID, *sub.TrialEndsAt)
}

// CanChangeSubscriptionPlan reports whether the subscription may migrate
// to the named plan. Never errors: any lookup failure means "no".
func (s *Service) CanChangeSubscriptionPlan(sub *Subscription, newPlanSlug string) bool {
	if newPlanSlug == sub.PlanSlug {
		return false
	}

	current, err := s.catalog.Get(sub.PlanSlug)
	if err != nil || !current.IsChangeable {
		return false
	}

	next, err := s.catalog.FindBySlug(newPlanSlug)
	if err != nil {
		return false
	}

	// Cross-type migration (e.g. seat-based -> usage-based) changes the
	// billing model mid-cycle and is never allowed through this path.
	return next.Type == current.Type
}

// ChangePlan migrates the subscription to a new plan. The provider is the
// source of truth for provider-managed plan changes: local state is only
// rewritten after the provider confirms, and a provider failure leaves
// local state untouched and returns false.
func (s *Service) ChangePlan(ctx context.Context, sub *Subscription, newPlanSlug string, prorated bool) (bool, []Event) {
	if !s.CanChangeSubscriptionPlan(sub, newPlanSlug) {
		return false, nil
	}

	next, err := s.catalog.FindBySlug(newPlanSlug)
	if err != nil {
		return false, nil
	}

	if err := s.provider.ChangePlan(ctx, sub, next, prorated); err != nil {
		s.log.ErrorContext(ctx, "provider plan change failed",
			logger.Component("subscription"),
			logger.SubscriptionID(sub.ID),
			logger.PlanSlug(newPlanSlug),
			logger.Error(err))
		return false, nil
	}

	sub.PlanSlug = next.Slug
	sub.Pricing = next.Pricing
	sub.ProviderPriceID = next.ProviderPriceID
	sub.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, sub); err != nil {
		s.log.ErrorContext(ctx, "failed to persist plan change",
			logger.Component("subscription"),
			logger.SubscriptionID(sub.ID),
			logger.Error(err))
		return false, nil
	}

	return true, []Event{Subscribed{Subscription: sub}}
}

// Cancel schedules cancellation at end of cycle through the provider and,
// once confirmed, records the cancellation intent locally.
func (s *Service) Cancel(ctx context.Context, sub *Subscription, reason, additionalInfo string) (bool, []Event) {
	if err := s.provider.CancelSubscription(ctx, sub); err != nil {
		s.log.ErrorContext(ctx, "provider cancellation failed",
			logger.Component("subscription"),
			logger.SubscriptionID(sub.ID),
			logger.Error(err))
		return false, nil
	}

	events, err := s.Update(ctx, sub, Changes{
		CanceledAtEndOfCycle:       lo.ToPtr(true),
		CancellationReason:         &reason,
		CancellationAdditionalInfo: &additionalInfo,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to record cancellation",
			logger.Component("subscription"),
			logger.SubscriptionID(sub.ID),
			logger.Error(err))
		return false, nil
	}
	return true, events
}

// DiscardCancellation removes a scheduled cancellation through the
// provider, then clears the local cancellation intent.
func (s *Service) DiscardCancellation(ctx context.Context, sub *Subscription) (bool, []Event) {
	if err := s.provider.DiscardSubscriptionCancellation(ctx, sub); err != nil {
		s.log.ErrorContext(ctx, "provider discard-cancellation failed",
			logger.Component("subscription"),
			logger.SubscriptionID(sub.ID),
			logger.Error(err))
		return false, nil
	}

	events, err := s.Update(ctx, sub, Changes{
		CanceledAtEndOfCycle:       lo.ToPtr(false),
		CancellationReason:         lo.ToPtr(""),
		CancellationAdditionalInfo: lo.ToPtr(""),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to clear cancellation",
			logger.Component("subscription"),
			logger.SubscriptionID(sub.ID),
			logger.Error(err))
		return false, nil
	}
	return true, events
}

// End terminates a locally-managed active subscription immediately: status
// becomes inactive and both end dates are forced to now. Provider-managed
// subscriptions must go through Cancel, which waits for end of cycle.
func (s *Service) End(ctx context.Context, sub *Subscription) (bool, []Event, error) {
	if !sub.IsLocal() || !sub.IsActive() {
		return false, nil, nil
	}

	now := s.now().UTC()
	events, err := s.Update(ctx, sub, Changes{
		Status:      lo.ToPtr(StatusInactive),
		EndsAt:      &now,
		TrialEndsAt: &now,
	})
	if err != nil {
		return false, nil, err
	}
	return true, events, nil
}

// MarkPastDue records a failed invoice payment reported by the provider.
func (s *Service) MarkPastDue(ctx context.Context, sub *Subscription, eventAt time.Time) ([]Event, error) {
	if !eventAt.IsZero() && !sub.LastProviderEventAt.IsZero() && !eventAt.After(sub.LastProviderEventAt) {
		return nil, nil
	}

	events, err := s.Update(ctx, sub, Changes{
		Status:  lo.ToPtr(StatusPastDue),
		EventAt: eventAt,
	})
	if err != nil {
		return nil, err
	}
	return append(events, InvoicePaymentFailed{Subscription: sub}), nil
}

// CleanupLocalStatuses reaps expired locally-managed subscriptions. Local
// subscriptions do not self-expire on read; this sweep transitions each
// one through Update so events fire consistently.
func (s *Service) CleanupLocalStatuses(ctx context.Context) ([]Event, error) {
	expired, err := s.store.ListExpiredLocalActive(ctx, s.now().UTC())
	if err != nil {
		return nil, err
	}

	var events []Event
	var errs []error
	for _, sub := range expired {
		evs, err := s.Update(ctx, sub, Changes{Status: lo.ToPtr(StatusInactive)})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, evs...)
	}
	return events, errors.Join(errs...)
}

// CanUserHaveTrial reports whether the user is still under the lifetime
// trial cap. Always true when trial limiting is disabled.
func (s *Service) CanUserHaveTrial(ctx context.Context, userID uuid.UUID) (bool, error) {
	if !s.cfg.TrialLimitEnabled {
		return true, nil
	}
	n, err := s.trials.CountByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return n < s.cfg.MaxTrialCount, nil
}

// ShouldSkipTrial decides whether checkout must not grant a provider-side
// trial. A local subscription whose plan has a trial already carries that
// trial in its end date; granting a second one at the provider would
// double it.
func (s *Service) ShouldSkipTrial(ctx context.Context, sub *Subscription) (bool, error) {
	pl, err := s.catalog.Get(sub.PlanSlug)
	if err != nil {
		return false, err
	}
	if sub.IsLocal() && pl.HasTrial {
		return true, nil
	}

	ok, err := s.CanUserHaveTrial(ctx, sub.UserID)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// ShouldVerifyPhoneForTrial reports whether a payment-free trial for this
// user must wait for phone verification.
func (s *Service) ShouldVerifyPhoneForTrial(ctx context.Context, userID uuid.UUID) (bool, error) {
	if !s.cfg.TrialWithoutPayment || !s.cfg.TrialRequiresPhoneVerification {
		return false, nil
	}
	verified, err := s.phoneVerified(ctx, userID)
	if err != nil {
		return false, err
	}
	return !verified, nil
}

// RequiresUserVerification reports whether the subscription is blocked on
// phone verification.
func (s *Service) RequiresUserVerification(sub *Subscription) bool {
	return sub.Status == StatusPendingUserVerification
}

// ActivatePendingUserVerification transitions all of a user's
// verification-blocked subscriptions to active. Called by the verification
// collaborator once the user confirms their phone number.
func (s *Service) ActivatePendingUserVerification(ctx context.Context, userID uuid.UUID) ([]Event, error) {
	pending, err := s.store.ListByUserAndStatus(ctx, userID, StatusPendingUserVerification)
	if err != nil {
		return nil, err
	}

	var events []Event
	var errs []error
	for _, sub := range pending {
		evs, err := s.Update(ctx, sub, Changes{Status: lo.ToPtr(StatusActive)})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, evs...)
	}
	return events, errors.Join(errs...)
}

// InitCheckout starts a provider checkout session for the plan.
func (s *Service) InitCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	return s.provider.InitSubscriptionCheckout(ctx, params)
}

// ReportUsage forwards consumed units to the provider for usage-based
// plans. Returns false on provider failure.
func (s *Service) ReportUsage(ctx context.Context, sub *Subscription, units int64) bool {
	pl, err := s.catalog.Get(sub.PlanSlug)
	if err != nil || pl.Type != plan.TypeUsageBased {
		return false
	}
	if err := s.provider.ReportUsage(ctx, sub, units); err != nil {
		s.log.ErrorContext(ctx, "provider usage report failed",
			logger.Component("subscription"),
			logger.SubscriptionID(sub.ID),
			logger.Error(err))
		return false
	}
	return true
}
