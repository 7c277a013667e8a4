package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSource loads the plan catalog from the plans table.
type PgSource struct {
	pool *pgxpool.Pool
}

// NewPgSource creates a Postgres-backed plan source.
// Panics if pool is nil to fail fast during initialization.
func NewPgSource(pool *pgxpool.Pool) *PgSource {
	if pool == nil {
		panic("plan: pgx pool is required")
	}
	return &PgSource{pool: pool}
}

func (s *PgSource) Load(ctx context.Context) (map[string]Plan, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slug, name, type, active, has_trial, trial_days,
		       max_users_per_tenant, product_id, provider_price_id, is_changeable,
		       price_amount, price_currency, price_per_unit, price_tiers,
		       billing_interval, billing_interval_count
		FROM plans`)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	defer rows.Close()

	plans := make(map[string]Plan)
	for rows.Next() {
		var (
			p         Plan
			perUnit   string
			tiersJSON []byte
		)
		if err := rows.Scan(
			&p.Slug, &p.Name, &p.Type, &p.Active, &p.HasTrial, &p.TrialDays,
			&p.MaxUsersPerTenant, &p.ProductID, &p.ProviderPriceID, &p.IsChangeable,
			&p.Pricing.Price.Amount, &p.Pricing.Price.Currency, &perUnit, &tiersJSON,
			&p.Pricing.Interval, &p.Pricing.IntervalCount,
		); err != nil {
			return nil, errors.Join(ErrFailedToLoadPlans, err)
		}

		if err := p.Pricing.PricePerUnit.UnmarshalText([]byte(perUnit)); err != nil {
			return nil, errors.Join(ErrFailedToLoadPlans,
				fmt.Errorf("plan %s: invalid per-unit price %q", p.Slug, perUnit))
		}
		if len(tiersJSON) > 0 {
			if err := json.Unmarshal(tiersJSON, &p.Pricing.Tiers); err != nil {
				return nil, errors.Join(ErrFailedToLoadPlans,
					fmt.Errorf("plan %s: invalid price tiers", p.Slug))
			}
		}

		plans[p.Slug] = p
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	return plans, nil
}
