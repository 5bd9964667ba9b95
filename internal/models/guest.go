package models

import (
	"time"

	"github.com/google/uuid"
)

// Guest is an invited person or a companion added at confirmation time.
// CompanionOf references a guest of the same event whose own CompanionOf is nil.
type Guest struct {
	ID          uuid.UUID  `json:"id"`
	OrgID       uuid.UUID  `json:"org_id"`
	EventID     uuid.UUID  `json:"event_id"`
	Name        string     `json:"name"`
	Email       *string    `json:"email"`
	PhoneE164   *string    `json:"phone_e164,omitempty"`
	Tag         *string    `json:"tag,omitempty"`
	CompanionOf *uuid.UUID `json:"companion_of"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RSVP status values accepted by the schema.
const (
	RSVPStatusPending   = "pending"
	RSVPStatusConfirmed = "confirmed"
	RSVPStatusDeclined  = "declined"
)

// RSVP is the attendance answer for one guest of one event.
type RSVP struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	GuestID   uuid.UUID `json:"guest_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
