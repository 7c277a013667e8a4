package logger

import (
	"log/slog"

	"github.com/google/uuid"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// TenantID records the tenant identifier under the key "tenant_id".
func TenantID(id uuid.UUID) slog.Attr {
	return slog.String("tenant_id", id.String())
}

// UserID records the user identifier under the key "user_id".
func UserID(id uuid.UUID) slog.Attr {
	return slog.String("user_id", id.String())
}

// SubscriptionID records the subscription identifier under the key "subscription_id".
func SubscriptionID(id uuid.UUID) slog.Attr {
	return slog.String("subscription_id", id.String())
}

// PlanSlug records the plan slug under the key "plan".
func PlanSlug(slug string) slog.Attr {
	return slog.String("plan", slug)
}

// Quantity records a seat quantity under the key "quantity".
func Quantity(n int) slog.Attr {
	return slog.Int("quantity", n)
}
