package guests

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartinvite/backend/internal/models"
)

const guestColumns = `id, org_id, event_id, name, email, phone_e164, tag, companion_of, created_at`

// Repository persists guests and their RSVP rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a guests repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateGuestWithRSVP inserts a guest and its pending RSVP in one transaction, so a guest never
// exists without an RSVP. A companion must reference a primary guest of the same event; the
// insert affects no row otherwise and pgx.ErrNoRows is returned.
func (r *Repository) CreateGuestWithRSVP(ctx context.Context, g *models.Guest) (*models.RSVP, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertGuest = `INSERT INTO guests (id, org_id, event_id, name, email, phone_e164, tag, companion_of)
		SELECT gen_random_uuid(), $1::uuid, $2::uuid, $3::text, $4::text, $5::text, $6::text, $7::uuid
		WHERE $7::uuid IS NULL OR EXISTS (
			SELECT 1 FROM guests p WHERE p.id = $7 AND p.event_id = $2 AND p.companion_of IS NULL)
		RETURNING id, created_at`
	err = tx.QueryRow(ctx, insertGuest, g.OrgID, g.EventID, g.Name, g.Email, g.PhoneE164, g.Tag, g.CompanionOf).
		Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert guest: %w", err)
	}

	const insertRSVP = `INSERT INTO rsvps (id, event_id, guest_id, status)
		VALUES (gen_random_uuid(), $1, $2, 'pending')
		RETURNING id, event_id, guest_id, status, created_at, updated_at`
	var rs models.RSVP
	err = tx.QueryRow(ctx, insertRSVP, g.EventID, g.ID).
		Scan(&rs.ID, &rs.EventID, &rs.GuestID, &rs.Status, &rs.CreatedAt, &rs.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert rsvp: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &rs, nil
}

// UpdateRSVPStatus writes status to the RSVP. The store rejects values outside its status set.
func (r *Repository) UpdateRSVPStatus(ctx context.Context, rsvpID uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rsvps SET status = $2, updated_at = NOW() WHERE id = $1`, rsvpID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListByEvent returns the event's guests with their RSVP status, primaries before their companions.
func (r *Repository) ListByEvent(ctx context.Context, orgID, eventID uuid.UUID) ([]GuestWithStatus, error) {
	const q = `SELECT g.id, g.org_id, g.event_id, g.name, g.email, g.phone_e164, g.tag, g.companion_of, g.created_at,
			COALESCE(rs.status, 'pending')
		FROM guests g
		LEFT JOIN rsvps rs ON rs.guest_id = g.id AND rs.event_id = g.event_id
		WHERE g.event_id = $1 AND g.org_id = $2
		ORDER BY COALESCE(g.companion_of, g.id), g.companion_of NULLS FIRST, g.created_at`
	rows, err := r.pool.Query(ctx, q, eventID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []GuestWithStatus
	for rows.Next() {
		var gs GuestWithStatus
		g := &gs.Guest
		if err := rows.Scan(&g.ID, &g.OrgID, &g.EventID, &g.Name, &g.Email, &g.PhoneE164, &g.Tag, &g.CompanionOf, &g.CreatedAt,
			&gs.RSVPStatus); err != nil {
			return nil, err
		}
		list = append(list, gs)
	}
	return list, rows.Err()
}

// GetMany returns the requested guests of one event; unknown IDs are skipped.
func (r *Repository) GetMany(ctx context.Context, orgID, eventID uuid.UUID, ids []uuid.UUID) ([]models.Guest, error) {
	q := `SELECT ` + guestColumns + ` FROM guests WHERE org_id = $1 AND event_id = $2 AND id = ANY($3)`
	rows, err := r.pool.Query(ctx, q, orgID, eventID, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Guest, error) {
		var g models.Guest
		err := row.Scan(&g.ID, &g.OrgID, &g.EventID, &g.Name, &g.Email, &g.PhoneE164, &g.Tag, &g.CompanionOf, &g.CreatedAt)
		return g, err
	})
}
