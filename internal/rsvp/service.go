// Package rsvp handles public, unauthenticated attendance confirmations through an event's
// RSVP token.
package rsvp

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/internal/models"
	"github.com/smartinvite/backend/pkg/apperr"
	"github.com/smartinvite/backend/pkg/database"
)

// statusCandidates are tried in order when upgrading a pending RSVP. Deployments whose
// status constraint predates "confirmed" accept one of the later spellings.
var statusCandidates = []string{
	models.RSVPStatusConfirmed,
	"yes",
	"accepted",
	"attending",
	"going",
	"present",
	"confirmado",
}

// EventFinder resolves the public token. events.Repository implements it.
type EventFinder interface {
	GetByToken(ctx context.Context, token string) (*models.Event, error)
}

// Store writes guests and RSVP rows. guests.Repository implements it.
type Store interface {
	CreateGuestWithRSVP(ctx context.Context, g *models.Guest) (*models.RSVP, error)
	UpdateRSVPStatus(ctx context.Context, rsvpID uuid.UUID, status string) error
}

// Notifier receives realtime events for organizer dashboards.
type Notifier interface {
	BroadcastToEventAndPublish(eventID uuid.UUID, event string, payload interface{})
}

// ConfirmInput is a public confirmation submission.
type ConfirmInput struct {
	Token      string
	Name       string
	Companions []string
}

// ConfirmedGuest is a created guest with the status its RSVP ended at.
type ConfirmedGuest struct {
	models.Guest
	Status string `json:"status"`
}

// ConfirmResult holds the primary guest and every companion that was stored.
type ConfirmResult struct {
	Guest      ConfirmedGuest
	Companions []ConfirmedGuest
}

// Service implements token lookup and confirmation.
type Service struct {
	events   EventFinder
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates the RSVP service. notifier may be nil.
func NewService(events EventFinder, store Store, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{events: events, store: store, notifier: notifier, logger: logger}
}

// Lookup returns the public view of the event behind token.
func (s *Service) Lookup(ctx context.Context, token string) (*models.PublicEvent, error) {
	e, err := s.resolve(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	pub := e.Public()
	return &pub, nil
}

// Confirm records a guest and its companions for the token's event. Only the primary guest
// and its pending RSVP are required to succeed; a failing companion is skipped. Repeated
// submissions create new guests.
func (s *Service) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	token := strings.TrimSpace(in.Token)
	name := strings.TrimSpace(in.Name)
	if token == "" || name == "" {
		return nil, apperr.Validation("token and name are required")
	}
	e, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	primary, err := s.addGuest(ctx, e, name, nil)
	if err != nil {
		s.logger.Error("rsvp primary guest failed", zap.String("event_id", e.ID.String()), zap.Error(err))
		return nil, apperr.Upstream("could not confirm attendance", err)
	}

	companions := make([]ConfirmedGuest, 0, len(in.Companions))
	for i, raw := range in.Companions {
		cname := strings.TrimSpace(raw)
		if cname == "" {
			continue
		}
		cg, err := s.addGuest(ctx, e, cname, &primary.ID)
		if err != nil {
			s.logger.Warn("rsvp companion skipped",
				zap.String("event_id", e.ID.String()),
				zap.String("primary_guest_id", primary.ID.String()),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		companions = append(companions, *cg)
	}

	s.logger.Info("rsvp confirmed",
		zap.String("event_id", e.ID.String()),
		zap.String("guest_id", primary.ID.String()),
		zap.String("status", primary.Status),
		zap.Int("companions", len(companions)),
	)
	if s.notifier != nil {
		s.notifier.BroadcastToEventAndPublish(e.ID, "rsvp.confirmed", map[string]interface{}{
			"guest_id":   primary.ID,
			"name":       primary.Name,
			"status":     primary.Status,
			"companions": len(companions),
		})
	}
	return &ConfirmResult{Guest: *primary, Companions: companions}, nil
}

func (s *Service) resolve(ctx context.Context, token string) (*models.Event, error) {
	if token == "" {
		return nil, apperr.NotFound("event not found")
	}
	e, err := s.events.GetByToken(ctx, token)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("event not found")
		}
		return nil, apperr.Upstream("could not load event", err)
	}
	return e, nil
}

// addGuest creates a guest with its pending RSVP atomically, then upgrades the RSVP. The
// upgrade runs after the insert commits so a rejected status never removes the pending row.
func (s *Service) addGuest(ctx context.Context, e *models.Event, name string, companionOf *uuid.UUID) (*ConfirmedGuest, error) {
	g := models.Guest{OrgID: e.OrgID, EventID: e.ID, Name: name, CompanionOf: companionOf}
	rs, err := s.store.CreateGuestWithRSVP(ctx, &g)
	if err != nil {
		return nil, err
	}
	return &ConfirmedGuest{Guest: g, Status: s.upgrade(ctx, rs)}, nil
}

// upgrade moves a pending RSVP to the first confirmation status the store accepts and
// returns the resulting status. Rejected values are skipped; any other failure stops the
// attempt and leaves the RSVP pending.
func (s *Service) upgrade(ctx context.Context, rs *models.RSVP) string {
	for _, status := range statusCandidates {
		err := s.store.UpdateRSVPStatus(ctx, rs.ID, status)
		if err == nil {
			rs.Status = status
			return status
		}
		if database.IsValueRejected(err) {
			continue
		}
		s.logger.Warn("rsvp status upgrade failed",
			zap.String("rsvp_id", rs.ID.String()),
			zap.String("status", status),
			zap.Error(err),
		)
		return rs.Status
	}
	s.logger.Warn("rsvp left pending, no confirmation status accepted", zap.String("rsvp_id", rs.ID.String()))
	return rs.Status
}
