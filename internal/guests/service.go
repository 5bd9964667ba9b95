// Package guests manages the organizer-side guest list.
package guests

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/internal/models"
	"github.com/smartinvite/backend/pkg/apperr"
	"github.com/smartinvite/backend/pkg/database"
)

// GuestWithStatus is a guest with its current RSVP status.
type GuestWithStatus struct {
	models.Guest
	RSVPStatus string `json:"rsvp_status"`
}

// Store is the guest persistence the service needs. Repository implements it.
type Store interface {
	CreateGuestWithRSVP(ctx context.Context, g *models.Guest) (*models.RSVP, error)
	ListByEvent(ctx context.Context, orgID, eventID uuid.UUID) ([]GuestWithStatus, error)
}

// EventLookup resolves an event inside the caller's organization.
type EventLookup interface {
	GetForOrg(ctx context.Context, orgID, id uuid.UUID) (*models.Event, error)
}

// AddInput is the organizer's guest creation request.
type AddInput struct {
	EventID uuid.UUID
	Name    string
	Email   string
	Phone   string
	Tag     string
}

// Service adds and lists guests.
type Service struct {
	store  Store
	events EventLookup
	logger *zap.Logger
}

// NewService creates a guests service.
func NewService(store Store, events EventLookup, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, events: events, logger: logger}
}

// Add creates a primary guest with a pending RSVP.
func (s *Service) Add(ctx context.Context, orgID uuid.UUID, in AddInput) (*models.Guest, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	phone, err := optionalPhone(in.Phone)
	if err != nil {
		return nil, err
	}
	if _, err := s.lookupEvent(ctx, orgID, in.EventID); err != nil {
		return nil, err
	}

	g := &models.Guest{
		OrgID:     orgID,
		EventID:   in.EventID,
		Name:      name,
		Email:     optional(strings.ToLower(in.Email)),
		PhoneE164: phone,
		Tag:       optional(in.Tag),
	}
	if _, err := s.store.CreateGuestWithRSVP(ctx, g); err != nil {
		s.logger.Error("create guest failed", zap.String("event_id", in.EventID.String()), zap.Error(err))
		return nil, apperr.Upstream("could not create guest", err)
	}
	return g, nil
}

// List returns the event's guests with their RSVP status.
func (s *Service) List(ctx context.Context, orgID, eventID uuid.UUID) ([]GuestWithStatus, error) {
	if _, err := s.lookupEvent(ctx, orgID, eventID); err != nil {
		return nil, err
	}
	list, err := s.store.ListByEvent(ctx, orgID, eventID)
	if err != nil {
		return nil, apperr.Upstream("could not list guests", err)
	}
	if list == nil {
		list = []GuestWithStatus{}
	}
	return list, nil
}

func (s *Service) lookupEvent(ctx context.Context, orgID, eventID uuid.UUID) (*models.Event, error) {
	e, err := s.events.GetForOrg(ctx, orgID, eventID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("event not found")
		}
		return nil, apperr.Upstream("could not load event", err)
	}
	return e, nil
}

var (
	phoneSeparators = regexp.MustCompile(`[\s().-]`)
	e164            = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
)

// NormalizePhone converts a phone number to E.164. Numbers without a country code and with
// 10 or 11 digits are taken as Brazilian (+55).
func NormalizePhone(raw string) (string, bool) {
	s := phoneSeparators.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		if len(s) == 10 || len(s) == 11 {
			s = "+55" + s
		} else {
			s = "+" + s
		}
	}
	if !e164.MatchString(s) {
		return "", false
	}
	return s, true
}

func optionalPhone(raw string) (*string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	p, ok := NormalizePhone(raw)
	if !ok {
		return nil, apperr.Validation("phone must be a valid international number")
	}
	return &p, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
