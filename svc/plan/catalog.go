package plan

import (
	"context"
	"errors"
	"fmt"
)

// Source loads plans into the catalog.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Catalog is the read-only plan lookup used by the subscription core.
// Plans are loaded once at construction; operator edits require a reload.
type Catalog struct {
	plans map[string]Plan
}

// NewCatalog loads and validates plans from src.
// Panics if src is nil to fail fast during initialization.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plan: Source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	return &Catalog{plans: plans}, nil
}

// FindBySlug returns the active plan with the given slug.
// Inactive and unknown plans both report ErrPlanNotFound so callers cannot
// subscribe users to retired tiers.
func (c *Catalog) FindBySlug(slug string) (Plan, error) {
	p, ok := c.plans[slug]
	if !ok || !p.Active {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// Get returns the plan regardless of its active flag. Used when resolving
// the plan of an existing subscription.
func (c *Catalog) Get(slug string) (Plan, error) {
	p, ok := c.plans[slug]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

func validatePlans(plans map[string]Plan) error {
	for slug, p := range plans {
		if p.Slug != slug {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan slug mismatch: map key %s != plan.Slug %s", slug, p.Slug))
		}
		if p.HasTrial && p.TrialDays <= 0 {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %s has a trial with non-positive duration: %d", slug, p.TrialDays))
		}
		if p.MaxUsersPerTenant < 0 {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %s has negative user cap: %d", slug, p.MaxUsersPerTenant))
		}
		switch p.Type {
		case TypeFlatRate, TypeSeatBased, TypeUsageBased:
		default:
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %s has unknown type %q", slug, p.Type))
		}
	}
	return nil
}
