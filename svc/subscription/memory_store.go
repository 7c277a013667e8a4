package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and examples. All operations
// are serialized by a single mutex, giving the same atomicity guarantees
// the Postgres implementation provides with transactions.
type MemoryStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]*Subscription)}
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryStore) CountNotDeadByTenant(_ context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sub := range s.subs {
		if sub.TenantID == tenantID && sub.Status.IsNotDead() {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListNotDeadByTenant(_ context.Context, tenantID uuid.UUID) ([]*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Subscription
	for _, sub := range s.subs {
		if sub.TenantID == tenantID && sub.Status.IsNotDead() {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateReplacingStaleNew(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.subs {
		if existing.UserID == sub.UserID && existing.TenantID == sub.TenantID && existing.Status == StatusNew {
			delete(s.subs, id)
		}
	}

	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func (s *MemoryStore) Update(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func (s *MemoryStore) MarkPendingIfNew(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok || sub.Status != StatusNew || sub.Type != TypeProviderManaged {
		return false, nil
	}
	sub.Status = StatusPending
	sub.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) ListExpiredLocalActive(_ context.Context, now time.Time) ([]*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Subscription
	for _, sub := range s.subs {
		if sub.Type == TypeLocallyManaged && sub.Status == StatusActive && sub.HasExpired(now) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Subscription
	for _, sub := range s.subs {
		if sub.Status == StatusActive {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByUserAndStatus(_ context.Context, userID uuid.UUID, status Status) ([]*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Status == status {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MemoryTrialStore is an in-memory TrialStore.
type MemoryTrialStore struct {
	mu     sync.Mutex
	trials []UserSubscriptionTrial
}

// NewMemoryTrialStore creates an empty in-memory trial store.
func NewMemoryTrialStore() *MemoryTrialStore {
	return &MemoryTrialStore{}
}

func (s *MemoryTrialStore) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.trials {
		if t.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryTrialStore) FirstOrCreate(_ context.Context, userID, subscriptionID uuid.UUID, trialEndsAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.trials {
		if t.UserID == userID && t.SubscriptionID == subscriptionID {
			return nil
		}
	}
	s.trials = append(s.trials, UserSubscriptionTrial{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: subscriptionID,
		TrialEndsAt:    trialEndsAt,
		CreatedAt:      time.Now().UTC(),
	})
	return nil
}
