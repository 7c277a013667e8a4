package subscription

import "errors"

var (
	// ErrCreationNotAllowed means the tenant already has a live
	// subscription. A caller must not retry blindly.
	ErrCreationNotAllowed = errors.New("subscription creation not allowed for tenant")

	// ErrLocalSubscriptionEndsAt means a locally-managed subscription had
	// no explicit end date and its plan has no trial to derive one from.
	// This signals a misconfigured plan, not a transient failure.
	ErrLocalSubscriptionEndsAt = errors.New("could not create local subscription: no computable end date")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidQuantity      = errors.New("subscription quantity must be at least 1")
)
