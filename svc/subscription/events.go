package subscription

import (
	"context"
	"time"
)

// Event is a domain effect produced by a state transition. The service
// never publishes events itself: mutating methods return the events they
// produced and a thin dispatcher at the call boundary publishes them. This
// keeps the core free of global dispatcher state and lets tests assert on
// the returned slice directly.
type Event interface {
	EventName() string
}

// Subscribed fires when a subscription becomes active.
type Subscribed struct {
	Subscription *Subscription
}

func (Subscribed) EventName() string { return "subscription.subscribed" }

// Canceled fires when a subscription transitions into the canceled state.
type Canceled struct {
	Subscription *Subscription
}

func (Canceled) EventName() string { return "subscription.canceled" }

// Renewed fires when a subscription's end date moves forward, carrying
// both cycle boundaries.
type Renewed struct {
	Subscription *Subscription
	OldEndsAt    time.Time
	NewEndsAt    time.Time
}

func (Renewed) EventName() string { return "subscription.renewed" }

// InvoicePaymentFailed fires when the provider reports a failed payment.
type InvoicePaymentFailed struct {
	Subscription *Subscription
}

func (InvoicePaymentFailed) EventName() string { return "subscription.invoice_payment_failed" }

// Dispatcher publishes domain events at the boundary.
type Dispatcher interface {
	Dispatch(ctx context.Context, events ...Event)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, events ...Event)

func (f DispatcherFunc) Dispatch(ctx context.Context, events ...Event) {
	f(ctx, events...)
}

// MultiDispatcher fans events out to several dispatchers in order.
type MultiDispatcher []Dispatcher

func (m MultiDispatcher) Dispatch(ctx context.Context, events ...Event) {
	for _, d := range m {
		d.Dispatch(ctx, events...)
	}
}

// NoopDispatcher discards all events.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(context.Context, ...Event) {}
