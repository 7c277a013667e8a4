package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AttachUserParams describes an invitation-driven membership grant. The
// store applies it as one transaction: the membership row, the default
// tenant flip, and the invitation's accepted mark all land together.
type AttachUserParams struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	Role         string
	InvitationID uuid.UUID
	AcceptedAt   time.Time
}

// Store persists tenants, memberships, and invitations. Implementations
// own transactional boundaries; the coordinator owns cross-system
// ordering (seat quantity before membership).
type Store interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error)
	CreateTenant(ctx context.Context, t *Tenant) error

	// CountUsers returns the tenant's live member count, the figure seat
	// quantities are reconciled against.
	CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error)
	IsMember(ctx context.Context, tenantID, userID uuid.UUID) (bool, error)

	// AttachUser grants membership transactionally. Fails with
	// ErrAlreadyMember if the user already belongs to the tenant.
	AttachUser(ctx context.Context, params AttachUserParams) error

	// DetachUser strips the user's tenant-scoped role and removes the
	// membership in one transaction.
	DetachUser(ctx context.Context, tenantID, userID uuid.UUID) error

	GetInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error)
	CreateInvitation(ctx context.Context, inv *Invitation) error
}
