package messaging

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartinvite/backend/internal/models"
)

// Repository persists templates, message logs and WhatsApp instances.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a messaging repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateTemplate inserts a message template.
func (r *Repository) CreateTemplate(ctx context.Context, t *models.MessageTemplate) error {
	const q = `INSERT INTO message_templates (id, org_id, name, body_text, channel)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, t.OrgID, t.Name, t.BodyText, t.Channel).Scan(&t.ID, &t.CreatedAt)
}

// ListTemplates returns the organization's templates, newest first.
func (r *Repository) ListTemplates(ctx context.Context, orgID uuid.UUID) ([]models.MessageTemplate, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, org_id, name, body_text, channel, created_at
		FROM message_templates WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanTemplate)
}

// GetTemplate returns one template of the organization.
func (r *Repository) GetTemplate(ctx context.Context, orgID, id uuid.UUID) (*models.MessageTemplate, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, org_id, name, body_text, channel, created_at
		FROM message_templates WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return nil, err
	}
	t, err := pgx.CollectOneRow(rows, scanTemplate)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTemplate(row pgx.CollectableRow) (models.MessageTemplate, error) {
	var t models.MessageTemplate
	err := row.Scan(&t.ID, &t.OrgID, &t.Name, &t.BodyText, &t.Channel, &t.CreatedAt)
	return t, err
}

// CreateMessage logs a delivery attempt.
func (r *Repository) CreateMessage(ctx context.Context, m *models.Message) error {
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	const q = `INSERT INTO messages (id, org_id, event_id, guest_id, status, payload)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, m.OrgID, m.EventID, m.GuestID, m.Status, []byte(payload)).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

// GetMessageStatus returns a message's current status.
func (r *Repository) GetMessageStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM messages WHERE id = $1`, id).Scan(&status)
	return status, err
}

// UpdateMessageStatus sets the status and merges patch into the payload.
func (r *Repository) UpdateMessageStatus(ctx context.Context, id uuid.UUID, status string, patch map[string]interface{}) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE messages SET status = $2, payload = payload || $3::jsonb, updated_at = NOW()
		WHERE id = $1`, id, status, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpsertInstance stores the organization's instance, replacing an earlier one.
func (r *Repository) UpsertInstance(ctx context.Context, in *models.WhatsAppInstance) error {
	const q = `INSERT INTO evolution_instances (id, org_id, instance_id, status, qr_code, webhook_url)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (org_id) DO UPDATE SET instance_id = EXCLUDED.instance_id, status = EXCLUDED.status,
			qr_code = EXCLUDED.qr_code, webhook_url = EXCLUDED.webhook_url, updated_at = NOW()
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, in.OrgID, in.InstanceID, in.Status, in.QRCode, in.WebhookURL).
		Scan(&in.ID, &in.CreatedAt, &in.UpdatedAt)
}

// GetInstance returns the organization's instance.
func (r *Repository) GetInstance(ctx context.Context, orgID uuid.UUID) (*models.WhatsAppInstance, error) {
	const q = `SELECT id, org_id, instance_id, status, qr_code, COALESCE(webhook_url, ''), created_at, updated_at
		FROM evolution_instances WHERE org_id = $1`
	var in models.WhatsAppInstance
	err := r.pool.QueryRow(ctx, q, orgID).
		Scan(&in.ID, &in.OrgID, &in.InstanceID, &in.Status, &in.QRCode, &in.WebhookURL, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// UpdateInstanceStatus records a connection update. Returns false when the organization has
// no instance.
func (r *Repository) UpdateInstanceStatus(ctx context.Context, orgID uuid.UUID, status string, qrCode *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE evolution_instances SET status = $2, qr_code = $3, updated_at = NOW()
		WHERE org_id = $1`, orgID, status, qrCode)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
