// Package billing talks to the payment provider: it opens checkout sessions for paid event
// tiers and reconciles the provider's asynchronous webhooks with stored event state.
package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/smartinvite/backend/internal/pricing"
)

// SessionStatus is the live status of a checkout session.
type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionComplete SessionStatus = "complete"
	SessionExpired  SessionStatus = "expired"
)

// CheckoutSession is the provider-side transaction for one event payment.
type CheckoutSession struct {
	ID     string
	URL    string
	Status SessionStatus
}

// CheckoutRequest scopes a session to one event and one tier price.
type CheckoutRequest struct {
	EventID uuid.UUID
	OrgID   uuid.UUID
	Guests  int
	Tier    pricing.Tier
}

// CheckoutProvider creates and inspects checkout sessions.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
}

// Webhook event types handled by the reconciler.
const (
	EventCheckoutCompleted = "checkout.session.completed"
)

// Metadata keys attached to every checkout session.
const (
	MetadataEventID = "event_id"
	MetadataOrgID   = "org_id"
	MetadataGuests  = "guests"
	MetadataTier    = "tier"
)

// WebhookEvent is a verified provider notification.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	Metadata  map[string]string
}

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookVerifier authenticates a raw webhook payload against its signature header.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (*WebhookEvent, error)
}
