// Package notifier turns subscription lifecycle events into customer
// email. It implements subscription.Dispatcher so it can be plugged into
// any code path that returns events.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clipmetrics/billing/pkg/email"
	"github.com/clipmetrics/billing/pkg/logger"
	"github.com/clipmetrics/billing/svc/subscription"
)

// EmailLookupFunc resolves a user's email address.
type EmailLookupFunc func(ctx context.Context, userID uuid.UUID) (string, error)

// Notifier sends lifecycle email for subscription events. Delivery
// failures are logged and swallowed: notification is best-effort and must
// never fail the state transition that produced the event.
type Notifier struct {
	sender      email.Sender
	lookupEmail EmailLookupFunc
	log         *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the notifier logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(n *Notifier) {
		if log != nil {
			n.log = log
		}
	}
}

// New creates a notifier.
// Panics if required dependencies are nil to fail fast during initialization.
func New(sender email.Sender, lookupEmail EmailLookupFunc, opts ...Option) *Notifier {
	if sender == nil {
		panic("notifier: email sender is required")
	}
	if lookupEmail == nil {
		panic("notifier: email lookup is required")
	}

	n := &Notifier{
		sender:      sender,
		lookupEmail: lookupEmail,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Dispatch implements subscription.Dispatcher.
func (n *Notifier) Dispatch(ctx context.Context, events ...subscription.Event) {
	for _, event := range events {
		if err := n.notify(ctx, event); err != nil {
			n.log.ErrorContext(ctx, "failed to send lifecycle email",
				logger.Component("notifier"),
				logger.Event(event.EventName()),
				logger.Error(err))
		}
	}
}

func (n *Notifier) notify(ctx context.Context, event subscription.Event) error {
	var (
		sub     *subscription.Subscription
		subject string
		body    string
	)

	switch e := event.(type) {
	case subscription.Subscribed:
		sub = e.Subscription
		subject = "Your subscription is active"
		body = fmt.Sprintf("<p>Your <strong>%s</strong> subscription is now active. Welcome aboard!</p>", sub.PlanSlug)
	case subscription.Renewed:
		sub = e.Subscription
		subject = "Your subscription has renewed"
		body = fmt.Sprintf("<p>Your <strong>%s</strong> subscription renewed and now runs until %s.</p>",
			sub.PlanSlug, e.NewEndsAt.Format("January 2, 2006"))
	case subscription.Canceled:
		sub = e.Subscription
		subject = "Your subscription has been canceled"
		body = fmt.Sprintf("<p>Your <strong>%s</strong> subscription is canceled. You can resubscribe at any time.</p>", sub.PlanSlug)
	case subscription.InvoicePaymentFailed:
		sub = e.Subscription
		subject = "Payment failed for your subscription"
		body = fmt.Sprintf("<p>We could not collect payment for your <strong>%s</strong> subscription. Please update your payment method to avoid interruption.</p>", sub.PlanSlug)
	default:
		return nil
	}

	to, err := n.lookupEmail(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("resolve user email: %w", err)
	}

	return n.sender.Send(ctx, email.SendParams{
		To:       to,
		Subject:  subject,
		BodyHTML: body,
		Tag:      event.EventName(),
	})
}
