package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartinvite/backend/internal/models"
)

const eventColumns = `id, org_id, created_by, title, COALESCE(description, ''), COALESCE(location, ''), starts_at, ends_at,
	guests_planned, allow_companion, template_kind, status, billing_status, billing_tier, rsvp_token,
	stripe_session_id, created_at, updated_at`

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row, e *models.Event) error {
	return row.Scan(&e.ID, &e.OrgID, &e.CreatedBy, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt,
		&e.GuestsPlanned, &e.AllowCompanion, &e.TemplateKind, &e.Status, &e.BillingStatus, &e.BillingTier, &e.RSVPToken,
		&e.StripeSessionID, &e.CreatedAt, &e.UpdatedAt)
}

// Create inserts the event with its gift and wedding-role seed rows in one transaction.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `INSERT INTO events (id, org_id, created_by, title, description, location, starts_at, guests_planned,
			allow_companion, template_kind, status, billing_status, billing_tier, rsvp_token)
		VALUES (gen_random_uuid(), $1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, q, e.OrgID, e.CreatedBy, e.Title, e.Description, e.Location, e.StartsAt, e.GuestsPlanned,
		e.AllowCompanion, e.TemplateKind, e.Status, e.BillingStatus, e.BillingTier, e.RSVPToken).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	for i := range e.Gifts {
		g := &e.Gifts[i]
		g.EventID = e.ID
		err := tx.QueryRow(ctx, `INSERT INTO event_gifts (id, event_id, title, link, price_cents, position)
			VALUES (gen_random_uuid(), $1, $2, NULLIF($3, ''), $4, $5) RETURNING id`,
			e.ID, g.Title, g.Link, g.PriceCents, g.Position).Scan(&g.ID)
		if err != nil {
			return fmt.Errorf("insert gift: %w", err)
		}
	}
	for i := range e.WeddingRoles {
		wr := &e.WeddingRoles[i]
		wr.EventID = e.ID
		err := tx.QueryRow(ctx, `INSERT INTO event_wedding_roles (id, event_id, role, name, position)
			VALUES (gen_random_uuid(), $1, $2, $3, $4) RETURNING id`,
			e.ID, wr.Role, wr.Name, wr.Position).Scan(&wr.ID)
		if err != nil {
			return fmt.Errorf("insert wedding role: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GetForOrg returns an event owned by orgID, with its seed data.
func (r *Repository) GetForOrg(ctx context.Context, orgID, id uuid.UUID) (*models.Event, error) {
	var e models.Event
	q := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND org_id = $2`
	if err := scanEvent(r.pool.QueryRow(ctx, q, id, orgID), &e); err != nil {
		return nil, err
	}
	if err := r.loadSeed(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetByToken resolves the public RSVP token.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.Event, error) {
	var e models.Event
	if err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE rsvp_token = $1`, token), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) loadSeed(ctx context.Context, e *models.Event) error {
	rows, err := r.pool.Query(ctx, `SELECT id, event_id, title, COALESCE(link, ''), price_cents, position
		FROM event_gifts WHERE event_id = $1 ORDER BY position`, e.ID)
	if err != nil {
		return err
	}
	e.Gifts, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Gift, error) {
		var g models.Gift
		err := row.Scan(&g.ID, &g.EventID, &g.Title, &g.Link, &g.PriceCents, &g.Position)
		return g, err
	})
	if err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `SELECT id, event_id, role, name, position
		FROM event_wedding_roles WHERE event_id = $1 ORDER BY position`, e.ID)
	if err != nil {
		return err
	}
	e.WeddingRoles, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.WeddingRole, error) {
		var wr models.WeddingRole
		err := row.Scan(&wr.ID, &wr.EventID, &wr.Role, &wr.Name, &wr.Position)
		return wr, err
	})
	return err
}

// ListByOrg returns the organization's events, newest first, with guest and confirmation counts.
func (r *Repository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.EventSummary, error) {
	q := `SELECT ` + eventColumns + `,
			(SELECT COUNT(*) FROM guests g WHERE g.event_id = events.id),
			(SELECT COUNT(*) FROM rsvps rs WHERE rs.event_id = events.id AND rs.status <> 'pending' AND rs.status <> 'declined')
		FROM events WHERE org_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EventSummary
	for rows.Next() {
		var s models.EventSummary
		e := &s.Event
		if err := rows.Scan(&e.ID, &e.OrgID, &e.CreatedBy, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt,
			&e.GuestsPlanned, &e.AllowCompanion, &e.TemplateKind, &e.Status, &e.BillingStatus, &e.BillingTier, &e.RSVPToken,
			&e.StripeSessionID, &e.CreatedAt, &e.UpdatedAt, &s.GuestCount, &s.ConfirmedCount); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// SwapCheckoutSession stores next as the session reference only if the current reference
// still equals prev (nil meaning no session). Returns false when another writer got there first.
func (r *Repository) SwapCheckoutSession(ctx context.Context, id uuid.UUID, prev *string, next string) (bool, error) {
	const q = `UPDATE events SET stripe_session_id = $3, updated_at = NOW()
		WHERE id = $1 AND billing_status = 'pending_payment' AND stripe_session_id IS NOT DISTINCT FROM $2`
	tag, err := r.pool.Exec(ctx, q, id, prev, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPaid flips a pending event to paid and active. Already-paid events are left untouched.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE events SET billing_status = 'paid', status = 'active', updated_at = NOW()
		WHERE id = $1 AND billing_status <> 'paid' AND billing_tier <> 'free'`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
