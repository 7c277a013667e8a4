package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipmetrics/billing/pkg/pg"
)

const subscriptionColumns = `
	id, tenant_id, user_id, plan_slug, status, type, quantity,
	price_amount, price_currency, price_per_unit, price_tiers,
	billing_interval, billing_interval_count,
	trial_ends_at, ends_at,
	canceled_at_end_of_cycle, cancellation_reason, cancellation_additional_info,
	provider_name, provider_subscription_id, provider_price_id,
	last_provider_event_at, created_at, updated_at`

// PgStore implements Store on PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a Postgres-backed subscription store.
// Panics if pool is nil to fail fast during initialization.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PgStore{pool: pool}
}

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)

	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *PgStore) CountNotDeadByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions
		 WHERE tenant_id = $1 AND status = ANY($2)`,
		tenantID, notDeadStatusStrings()).Scan(&n)
	return n, err
}

func (s *PgStore) ListNotDeadByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE tenant_id = $1 AND status = ANY($2)`,
		tenantID, notDeadStatusStrings())
	if err != nil {
		return nil, err
	}
	return scanSubscriptions(rows)
}

func (s *PgStore) CreateReplacingStaleNew(ctx context.Context, sub *Subscription) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM subscriptions
			 WHERE user_id = $1 AND tenant_id = $2 AND status = $3`,
			sub.UserID, sub.TenantID, StatusNew); err != nil {
			return err
		}

		tiers, err := json.Marshal(sub.Pricing.Tiers)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO subscriptions (`+subscriptionColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
			sub.ID, sub.TenantID, sub.UserID, sub.PlanSlug, sub.Status, sub.Type, sub.Quantity,
			sub.Pricing.Price.Amount, sub.Pricing.Price.Currency, sub.Pricing.PricePerUnit.String(), tiers,
			sub.Pricing.Interval, sub.Pricing.IntervalCount,
			sub.TrialEndsAt, sub.EndsAt,
			sub.CanceledAtEndOfCycle, sub.CancellationReason, sub.CancellationAdditionalInfo,
			sub.ProviderName, sub.ProviderSubscriptionID, sub.ProviderPriceID,
			sub.LastProviderEventAt, sub.CreatedAt, sub.UpdatedAt)
		return err
	})
}

func (s *PgStore) Update(ctx context.Context, sub *Subscription) error {
	tiers, err := json.Marshal(sub.Pricing.Tiers)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET
			plan_slug = $2, status = $3, quantity = $4,
			price_amount = $5, price_currency = $6, price_per_unit = $7, price_tiers = $8,
			billing_interval = $9, billing_interval_count = $10,
			trial_ends_at = $11, ends_at = $12,
			canceled_at_end_of_cycle = $13, cancellation_reason = $14, cancellation_additional_info = $15,
			provider_name = $16, provider_subscription_id = $17, provider_price_id = $18,
			last_provider_event_at = $19, updated_at = $20
		WHERE id = $1`,
		sub.ID, sub.PlanSlug, sub.Status, sub.Quantity,
		sub.Pricing.Price.Amount, sub.Pricing.Price.Currency, sub.Pricing.PricePerUnit.String(), tiers,
		sub.Pricing.Interval, sub.Pricing.IntervalCount,
		sub.TrialEndsAt, sub.EndsAt,
		sub.CanceledAtEndOfCycle, sub.CancellationReason, sub.CancellationAdditionalInfo,
		sub.ProviderName, sub.ProviderSubscriptionID, sub.ProviderPriceID,
		sub.LastProviderEventAt, sub.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// MarkPendingIfNew is deliberately a single conditional UPDATE, not a
// read-then-write: a webhook may have advanced the status past NEW between
// the checkout success page loading and this call, and that fresher status
// must never be clobbered.
func (s *PgStore) MarkPendingIfNew(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3 AND type = $4`,
		id, StatusPending, StatusNew, TypeProviderManaged)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) ListExpiredLocalActive(ctx context.Context, now time.Time) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE type = $1 AND status = $2 AND ends_at IS NOT NULL AND ends_at < $3`,
		TypeLocallyManaged, StatusActive, now)
	if err != nil {
		return nil, err
	}
	return scanSubscriptions(rows)
}

func (s *PgStore) ListActive(ctx context.Context) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE status = $1`,
		StatusActive)
	if err != nil {
		return nil, err
	}
	return scanSubscriptions(rows)
}

func (s *PgStore) ListByUserAndStatus(ctx context.Context, userID uuid.UUID, status Status) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = $1 AND status = $2`,
		userID, status)
	if err != nil {
		return nil, err
	}
	return scanSubscriptions(rows)
}

func notDeadStatusStrings() []string {
	out := make([]string, len(NotDeadStatuses))
	for i, s := range NotDeadStatuses {
		out[i] = string(s)
	}
	return out
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		sub     Subscription
		perUnit string
		tiers   []byte
	)
	if err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.UserID, &sub.PlanSlug, &sub.Status, &sub.Type, &sub.Quantity,
		&sub.Pricing.Price.Amount, &sub.Pricing.Price.Currency, &perUnit, &tiers,
		&sub.Pricing.Interval, &sub.Pricing.IntervalCount,
		&sub.TrialEndsAt, &sub.EndsAt,
		&sub.CanceledAtEndOfCycle, &sub.CancellationReason, &sub.CancellationAdditionalInfo,
		&sub.ProviderName, &sub.ProviderSubscriptionID, &sub.ProviderPriceID,
		&sub.LastProviderEventAt, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := sub.Pricing.PricePerUnit.UnmarshalText([]byte(perUnit)); err != nil {
		return nil, err
	}
	if len(tiers) > 0 {
		if err := json.Unmarshal(tiers, &sub.Pricing.Tiers); err != nil {
			return nil, err
		}
	}
	return &sub, nil
}

func scanSubscriptions(rows pgx.Rows) ([]*Subscription, error) {
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PgTrialStore implements TrialStore on PostgreSQL.
type PgTrialStore struct {
	pool *pgxpool.Pool
}

// NewPgTrialStore creates a Postgres-backed trial store.
// Panics if pool is nil to fail fast during initialization.
func NewPgTrialStore(pool *pgxpool.Pool) *PgTrialStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PgTrialStore{pool: pool}
}

func (s *PgTrialStore) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_subscription_trials WHERE user_id = $1`,
		userID).Scan(&n)
	return n, err
}

func (s *PgTrialStore) FirstOrCreate(ctx context.Context, userID, subscriptionID uuid.UUID, trialEndsAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_subscription_trials (id, user_id, subscription_id, trial_ends_at, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, subscription_id) DO NOTHING`,
		uuid.New(), userID, subscriptionID, trialEndsAt)
	return err
}
