package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message delivery status.
const (
	MessageStatusQueued = "queued"
	MessageStatusSent   = "sent"
	MessageStatusFailed = "failed"
)

// ChannelWhatsApp is the only delivery channel.
const ChannelWhatsApp = "whatsapp"

// MessageTemplate is an organizer-defined body with {{variable}} placeholders.
type MessageTemplate struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	Name      string    `json:"name"`
	BodyText  string    `json:"body_text"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"created_at"`
}

// Message records one delivery attempt to one guest.
type Message struct {
	ID        uuid.UUID       `json:"id"`
	OrgID     uuid.UUID       `json:"org_id"`
	EventID   uuid.UUID       `json:"event_id"`
	GuestID   uuid.UUID       `json:"guest_id"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WhatsAppInstance is the Evolution API instance bound to an organization.
type WhatsAppInstance struct {
	ID         uuid.UUID `json:"id"`
	OrgID      uuid.UUID `json:"org_id"`
	InstanceID string    `json:"instance_id"`
	Status     string    `json:"status"`
	QRCode     *string   `json:"qr_code,omitempty"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
