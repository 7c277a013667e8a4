package notifier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmetrics/billing/pkg/email"
	"github.com/clipmetrics/billing/svc/notifier"
	"github.com/clipmetrics/billing/svc/subscription"
)

type recordingSender struct {
	sent []email.SendParams
	fail bool
}

func (s *recordingSender) Send(_ context.Context, params email.SendParams) error {
	if s.fail {
		return email.ErrFailedToSend
	}
	s.sent = append(s.sent, params)
	return nil
}

func TestNotifierDispatch(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	sub := &subscription.Subscription{
		ID:       uuid.New(),
		UserID:   userID,
		PlanSlug: "pro",
	}

	sender := &recordingSender{}
	n := notifier.New(sender, func(_ context.Context, id uuid.UUID) (string, error) {
		require.Equal(t, userID, id)
		return "user@example.com", nil
	})

	endsAt := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	n.Dispatch(context.Background(),
		subscription.Subscribed{Subscription: sub},
		subscription.Renewed{Subscription: sub, NewEndsAt: endsAt},
		subscription.Canceled{Subscription: sub},
		subscription.InvoicePaymentFailed{Subscription: sub},
	)

	require.Len(t, sender.sent, 4)
	tags := make([]string, 0, len(sender.sent))
	for _, msg := range sender.sent {
		assert.Equal(t, "user@example.com", msg.To)
		tags = append(tags, msg.Tag)
	}
	assert.Equal(t, []string{
		"subscription.subscribed",
		"subscription.renewed",
		"subscription.canceled",
		"subscription.invoice_payment_failed",
	}, tags)

	assert.Contains(t, sender.sent[1].BodyHTML, "July 15, 2025")
}

func TestNotifierSwallowsFailures(t *testing.T) {
	t.Parallel()

	sub := &subscription.Subscription{ID: uuid.New(), UserID: uuid.New(), PlanSlug: "pro"}

	t.Run("sender failure", func(t *testing.T) {
		t.Parallel()

		n := notifier.New(&recordingSender{fail: true}, func(context.Context, uuid.UUID) (string, error) {
			return "user@example.com", nil
		})
		assert.NotPanics(t, func() {
			n.Dispatch(context.Background(), subscription.Subscribed{Subscription: sub})
		})
	})

	t.Run("lookup failure", func(t *testing.T) {
		t.Parallel()

		sender := &recordingSender{}
		n := notifier.New(sender, func(context.Context, uuid.UUID) (string, error) {
			return "", errors.New("user not found")
		})
		n.Dispatch(context.Background(), subscription.Canceled{Subscription: sub})
		assert.Empty(t, sender.sent)
	})
}
