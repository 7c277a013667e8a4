package plan

import (
	"context"
	"slices"
	"sync"
)

type memorySource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewMemorySource returns an in-memory Source holding a copy of the given
// plans. Panics if no plans are provided so a catalog can never be empty.
func NewMemorySource(plans ...Plan) Source {
	if len(plans) == 0 {
		panic("plan: at least one plan is required")
	}

	copied := make(map[string]Plan, len(plans))
	for _, p := range plans {
		p.Pricing.Tiers = slices.Clone(p.Pricing.Tiers)
		copied[p.Slug] = p
	}

	return &memorySource{plans: copied}
}

func (s *memorySource) Load(_ context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Plan, len(s.plans))
	for slug, p := range s.plans {
		p.Pricing.Tiers = slices.Clone(p.Pricing.Tiers)
		out[slug] = p
	}
	return out, nil
}
