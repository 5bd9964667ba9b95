package organizations

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartinvite/backend/internal/models"
)

// Repository handles organization and membership persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateWithOwner creates an organization and its owner membership in one transaction.
func (r *Repository) CreateWithOwner(ctx context.Context, name string, ownerID uuid.UUID) (*models.Organization, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	org := &models.Organization{Name: name, OwnerID: ownerID}
	const q = `INSERT INTO organizations (id, name, owner_id)
		VALUES (gen_random_uuid(), $1, $2)
		RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, q, name, ownerID).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert organization: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO org_members (id, org_id, user_id, role)
		VALUES (gen_random_uuid(), $1, $2, $3)`, org.ID, ownerID, models.OrgRoleOwner); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return org, nil
}

// OrgForUser returns the user's organization, preferring an owned one, then the oldest membership.
func (r *Repository) OrgForUser(ctx context.Context, userID uuid.UUID) (*models.Organization, error) {
	const q = `SELECT o.id, o.name, o.owner_id, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN org_members m ON m.org_id = o.id
		WHERE m.user_id = $1
		ORDER BY (m.role = 'owner') DESC, m.created_at ASC
		LIMIT 1`
	var o models.Organization
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&o.ID, &o.Name, &o.OwnerID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// CanViewEvent reports whether the user belongs to the organization owning the event.
func (r *Repository) CanViewEvent(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM events e
		INNER JOIN org_members m ON m.org_id = e.org_id
		WHERE e.id = $1 AND m.user_id = $2)`
	var ok bool
	err := r.pool.QueryRow(ctx, q, eventID, userID).Scan(&ok)
	return ok, err
}
