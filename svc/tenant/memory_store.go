package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type membershipKey struct {
	tenantID uuid.UUID
	userID   uuid.UUID
}

// MemoryStore is an in-memory Store for tests and examples. A single
// mutex serializes all operations, mirroring the transactional guarantees
// of the Postgres implementation.
type MemoryStore struct {
	mu          sync.Mutex
	tenants     map[uuid.UUID]*Tenant
	members     map[membershipKey]*Member
	invitations map[uuid.UUID]*Invitation
}

// NewMemoryStore creates an empty in-memory tenant store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[uuid.UUID]*Tenant),
		members:     make(map[membershipKey]*Member),
		invitations: make(map[uuid.UUID]*Invitation),
	}
}

func (s *MemoryStore) GetTenant(_ context.Context, id uuid.UUID) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) CreateTenant(_ context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.tenants[t.ID] = &cp

	// The owner is implicitly the first member and the tenant becomes
	// their default workspace.
	s.members[membershipKey{t.ID, t.OwnerID}] = &Member{
		TenantID:  t.ID,
		UserID:    t.OwnerID,
		Role:      "owner",
		IsDefault: true,
		JoinedAt:  t.CreatedAt,
	}
	return nil
}

func (s *MemoryStore) CountUsers(_ context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.members {
		if key.tenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) IsMember(_ context.Context, tenantID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.members[membershipKey{tenantID, userID}]
	return ok, nil
}

func (s *MemoryStore) AttachUser(_ context.Context, params AttachUserParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey{params.TenantID, params.UserID}
	if _, ok := s.members[key]; ok {
		return ErrAlreadyMember
	}

	inv, ok := s.invitations[params.InvitationID]
	if !ok {
		return ErrInvitationNotFound
	}
	if inv.Status != InvitationPending {
		return ErrInvitationNotPending
	}

	for k, m := range s.members {
		if k.userID == params.UserID {
			m.IsDefault = false
		}
	}
	s.members[key] = &Member{
		TenantID:  params.TenantID,
		UserID:    params.UserID,
		Role:      params.Role,
		IsDefault: true,
		JoinedAt:  params.AcceptedAt,
	}

	inv.Status = InvitationAccepted
	acceptedAt := params.AcceptedAt
	inv.AcceptedAt = &acceptedAt
	return nil
}

func (s *MemoryStore) DetachUser(_ context.Context, tenantID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey{tenantID, userID}
	if _, ok := s.members[key]; !ok {
		return ErrMembershipNotFound
	}
	delete(s.members, key)
	return nil
}

func (s *MemoryStore) GetInvitation(_ context.Context, id uuid.UUID) (*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) CreateInvitation(_ context.Context, inv *Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inv
	if cp.Status == "" {
		cp.Status = InvitationPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.invitations[inv.ID] = &cp
	return nil
}
