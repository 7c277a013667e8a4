package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipmetrics/billing/pkg/pg"
)

// PgStore is the Postgres-backed Store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a Postgres tenant store.
// Panics if pool is nil to fail fast during initialization.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("tenant: pgx pool is required")
	}
	return &PgStore{pool: pool}
}

func (s *PgStore) GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	var t Tenant
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, owner_id, created_at, updated_at
		FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (s *PgStore) CreateTenant(ctx context.Context, t *Tenant) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tenants (id, name, slug, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, t.Name, t.Slug, t.OwnerID, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO tenant_users (tenant_id, user_id, role, is_default, joined_at)
			VALUES ($1, $2, 'owner', TRUE, $3)`,
			t.ID, t.OwnerID, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		return nil
	})
}

func (s *PgStore) CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tenant_users WHERE tenant_id = $1`, tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tenant users: %w", err)
	}
	return n, nil
}

func (s *PgStore) IsMember(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tenant_users WHERE tenant_id = $1 AND user_id = $2
		)`, tenantID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (s *PgStore) AttachUser(ctx context.Context, params AttachUserParams) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Claim the invitation first so a double-accept loses the race
		// inside the database, not in application code.
		tag, err := tx.Exec(ctx, `
			UPDATE invitations
			SET status = 'accepted', accepted_at = $2
			WHERE id = $1 AND status = 'pending'`,
			params.InvitationID, params.AcceptedAt)
		if err != nil {
			return fmt.Errorf("accept invitation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInvitationNotPending
		}

		_, err = tx.Exec(ctx, `
			UPDATE tenant_users SET is_default = FALSE
			WHERE user_id = $1 AND is_default`, params.UserID)
		if err != nil {
			return fmt.Errorf("clear default tenant: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO tenant_users (tenant_id, user_id, role, is_default, joined_at)
			VALUES ($1, $2, $3, TRUE, $4)`,
			params.TenantID, params.UserID, params.Role, params.AcceptedAt)
		if err != nil {
			if pg.IsDuplicateKey(err) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("insert membership: %w", err)
		}
		return nil
	})
}

func (s *PgStore) DetachUser(ctx context.Context, tenantID, userID uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM tenant_users WHERE tenant_id = $1 AND user_id = $2`,
			tenantID, userID)
		if err != nil {
			return fmt.Errorf("delete membership: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrMembershipNotFound
		}
		return nil
	})
}

func (s *PgStore) GetInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	var inv Invitation
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, role, status, expires_at, accepted_at, created_at
		FROM invitations WHERE id = $1`, id,
	).Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.Status,
		&inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return &inv, nil
}

func (s *PgStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invitations (id, tenant_id, email, role, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.TenantID, inv.Email, inv.Role, inv.Status, inv.ExpiresAt, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}
