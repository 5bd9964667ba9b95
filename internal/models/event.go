package models

import (
	"time"

	"github.com/google/uuid"
)

// Event status.
const (
	EventStatusDraft  = "draft"
	EventStatusActive = "active"
)

// Event billing status.
const (
	BillingStatusFree           = "free"
	BillingStatusPendingPayment = "pending_payment"
	BillingStatusPaid           = "paid"
)

// Template kinds shape which seed data an event accepts.
const (
	TemplateKindDefault  = "default"
	TemplateKindBirthday = "birthday"
	TemplateKindWedding  = "wedding"
	TemplateKindOther    = "other"
)

// Event is an organizer-created gathering with a public RSVP token.
type Event struct {
	ID              uuid.UUID     `json:"id"`
	OrgID           uuid.UUID     `json:"org_id"`
	CreatedBy       uuid.UUID     `json:"created_by"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Location        string        `json:"location"`
	StartsAt        time.Time     `json:"starts_at"`
	EndsAt          *time.Time    `json:"ends_at,omitempty"`
	GuestsPlanned   int           `json:"guests_planned"`
	AllowCompanion  bool          `json:"allow_companion"`
	TemplateKind    string        `json:"template_kind"`
	Status          string        `json:"status"`
	BillingStatus   string        `json:"billing_status"`
	BillingTier     string        `json:"billing_tier"`
	RSVPToken       string        `json:"rsvp_token"`
	StripeSessionID *string       `json:"stripe_session_id,omitempty"`
	Gifts           []Gift        `json:"gifts,omitempty"`
	WeddingRoles    []WeddingRole `json:"wedding_roles,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// RequiresPayment reports whether the event still waits for a completed checkout.
func (e *Event) RequiresPayment() bool {
	return e.BillingStatus == BillingStatusPendingPayment
}

// PublicEvent is the subset exposed through the RSVP token.
type PublicEvent struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	StartsAt       time.Time `json:"starts_at"`
	AllowCompanion bool      `json:"allow_companion"`
	TemplateKind   string    `json:"template_kind"`
	RSVPToken      string    `json:"rsvp_token"`
}

// Public strips organizer-only fields.
func (e *Event) Public() PublicEvent {
	return PublicEvent{
		ID:             e.ID,
		Title:          e.Title,
		Description:    e.Description,
		Location:       e.Location,
		StartsAt:       e.StartsAt,
		AllowCompanion: e.AllowCompanion,
		TemplateKind:   e.TemplateKind,
		RSVPToken:      e.RSVPToken,
	}
}

// EventSummary is an event with dashboard counters.
type EventSummary struct {
	Event
	GuestCount     int `json:"guest_count"`
	ConfirmedCount int `json:"confirmed_count"`
}

// Gift is one gift-registry entry seeded at creation.
type Gift struct {
	ID         uuid.UUID `json:"id"`
	EventID    uuid.UUID `json:"event_id"`
	Title      string    `json:"title"`
	Link       string    `json:"link,omitempty"`
	PriceCents *int      `json:"price_cents,omitempty"`
	Position   int       `json:"position"`
}

// Wedding party roles.
const (
	WeddingRoleGroomsman  = "padrinho"
	WeddingRoleBridesmaid = "madrinha"
)

// WeddingRole is a member of the wedding party.
type WeddingRole struct {
	ID       uuid.UUID `json:"id"`
	EventID  uuid.UUID `json:"event_id"`
	Role     string    `json:"role"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
}
