package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a workspace that owns subscriptions and members.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	OwnerID   uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member is one user's membership in a tenant. A user belongs to any
// number of tenants but has exactly one default.
type Member struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	Role      string
	IsDefault bool
	JoinedAt  time.Time
}

// InvitationStatus tracks an invitation through its lifecycle.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Invitation asks a user, identified by email, to join a tenant.
type Invitation struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Email      string
	Role       string
	Status     InvitationStatus
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// IsAcceptable reports whether the invitation can still be accepted.
func (i *Invitation) IsAcceptable(now time.Time) bool {
	if i.Status != InvitationPending {
		return false
	}
	return i.ExpiresAt.IsZero() || now.Before(i.ExpiresAt)
}
