// Package events owns the event lifecycle: creation with tier selection and the
// payment-pending to paid transition driven by checkout sessions.
package events

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/internal/billing"
	"github.com/smartinvite/backend/internal/models"
	"github.com/smartinvite/backend/internal/pricing"
	"github.com/smartinvite/backend/pkg/apperr"
	"github.com/smartinvite/backend/pkg/database"
)

// Store is the persistence the lifecycle needs. Repository implements it.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetForOrg(ctx context.Context, orgID, id uuid.UUID) (*models.Event, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.EventSummary, error)
	SwapCheckoutSession(ctx context.Context, id uuid.UUID, prev *string, next string) (bool, error)
}

// GiftInput is one gift-registry seed entry.
type GiftInput struct {
	Title      string `json:"title"`
	Link       string `json:"link"`
	PriceCents *int   `json:"priceCents"`
}

// RoleInput is one wedding-party seed entry.
type RoleInput struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

// CreateInput is the organizer's event creation request.
type CreateInput struct {
	Title          string
	Description    string
	Location       string
	StartsAt       string
	Guests         int
	AllowCompanion bool
	TemplateKind   string
	Gifts          []GiftInput
	Roles          []RoleInput
}

// CreateResult is the created event plus the checkout redirect for paid tiers.
type CreateResult struct {
	Event           *models.Event
	RequiresPayment bool
	CheckoutURL     string
}

// ContinueResult carries either a checkout URL or AlreadyPaid.
type ContinueResult struct {
	CheckoutURL string
	AlreadyPaid bool
}

// Service implements event creation and payment continuation.
type Service struct {
	store    Store
	checkout billing.CheckoutProvider
	logger   *zap.Logger
	newToken func() (string, error)
}

// NewService creates the event lifecycle service.
func NewService(store Store, checkout billing.CheckoutProvider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, checkout: checkout, logger: logger, newToken: newToken}
}

// Create validates the input, persists the event with its seed data and, for paid tiers,
// opens a checkout session. A checkout failure leaves the event pending_payment without a session.
func (s *Service) Create(ctx context.Context, orgID, userID uuid.UUID, in CreateInput) (*CreateResult, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	startsRaw := strings.TrimSpace(in.StartsAt)
	if startsRaw == "" {
		return nil, apperr.Validation("startsAt is required")
	}
	startsAt, err := ParseStartsAt(startsRaw)
	if err != nil {
		return nil, apperr.Validation("startsAt is not a valid date")
	}
	guests := in.Guests
	if guests < 0 {
		guests = 0
	}
	kind := normalizeKind(in.TemplateKind)
	gifts := shapeGifts(kind, in.Gifts)
	roles, err := shapeRoles(kind, in.Roles)
	if err != nil {
		return nil, err
	}
	token, err := s.newToken()
	if err != nil {
		return nil, apperr.Upstream("could not create event", err)
	}

	tier := pricing.PlanFor(guests)
	e := &models.Event{
		OrgID:          orgID,
		CreatedBy:      userID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		Location:       strings.TrimSpace(in.Location),
		StartsAt:       startsAt,
		GuestsPlanned:  guests,
		AllowCompanion: in.AllowCompanion,
		TemplateKind:   kind,
		BillingTier:    tier.Key,
		RSVPToken:      token,
		Gifts:          gifts,
		WeddingRoles:   roles,
	}
	if tier.RequiresPayment {
		e.Status = models.EventStatusDraft
		e.BillingStatus = models.BillingStatusPendingPayment
	} else {
		e.Status = models.EventStatusActive
		e.BillingStatus = models.BillingStatusFree
	}

	if err := s.store.Create(ctx, e); err != nil {
		s.logger.Error("create event failed", zap.String("org_id", orgID.String()), zap.Error(err))
		return nil, apperr.Upstream("could not create event", err)
	}
	s.logger.Info("event created",
		zap.String("event_id", e.ID.String()),
		zap.String("tier", tier.Key),
		zap.Int("guests", guests),
	)
	if !tier.RequiresPayment {
		return &CreateResult{Event: e}, nil
	}

	res, err := s.openSession(ctx, e, tier)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Event: e, RequiresPayment: true, CheckoutURL: res.CheckoutURL}, nil
}

// ContinuePayment returns a usable checkout URL for a pending event, reusing an open session
// when possible.
func (s *Service) ContinuePayment(ctx context.Context, orgID, eventID uuid.UUID) (*ContinueResult, error) {
	e, err := s.get(ctx, orgID, eventID)
	if err != nil {
		return nil, err
	}
	if e.BillingTier == pricing.TierFree || e.BillingStatus == models.BillingStatusFree {
		return nil, apperr.InvalidState("event does not require payment")
	}
	if e.BillingStatus == models.BillingStatusPaid {
		return &ContinueResult{AlreadyPaid: true}, nil
	}

	if e.StripeSessionID != nil {
		res, ok := s.reuseSession(ctx, e, *e.StripeSessionID)
		if ok {
			return res, nil
		}
	}

	tier, ok := pricing.ByKey(e.BillingTier)
	if !ok {
		return nil, apperr.Upstream("could not continue payment", errors.New("unknown stored tier "+e.BillingTier))
	}
	if derived := pricing.PlanFor(e.GuestsPlanned); derived.Key != tier.Key {
		s.logger.Warn("stored tier differs from guest count, charging stored tier",
			zap.String("event_id", e.ID.String()),
			zap.String("stored_tier", tier.Key),
			zap.String("derived_tier", derived.Key),
		)
	}
	return s.openSession(ctx, e, tier)
}

// reuseSession inspects an existing session. ok is false when a new session is needed.
func (s *Service) reuseSession(ctx context.Context, e *models.Event, sessionID string) (*ContinueResult, bool) {
	sess, err := s.checkout.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		s.logger.Warn("checkout session unreadable, creating a new one",
			zap.String("event_id", e.ID.String()), zap.String("session_id", sessionID), zap.Error(err))
		return nil, false
	}
	switch {
	case sess.Status == billing.SessionComplete:
		return &ContinueResult{AlreadyPaid: true}, true
	case sess.Status == billing.SessionOpen && sess.URL != "":
		return &ContinueResult{CheckoutURL: sess.URL}, true
	}
	return nil, false
}

// openSession creates a checkout session and attaches it with compare-and-swap on the
// event's current reference. A lost race reuses the winner's session.
func (s *Service) openSession(ctx context.Context, e *models.Event, tier pricing.Tier) (*ContinueResult, error) {
	sess, err := s.checkout.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		EventID: e.ID,
		OrgID:   e.OrgID,
		Guests:  e.GuestsPlanned,
		Tier:    tier,
	})
	if err != nil {
		s.logger.Error("create checkout session failed", zap.String("event_id", e.ID.String()), zap.Error(err))
		return nil, apperr.Upstream("could not start checkout", err)
	}

	swapped, err := s.store.SwapCheckoutSession(ctx, e.ID, e.StripeSessionID, sess.ID)
	if err != nil {
		s.logger.Error("attach checkout session failed", zap.String("event_id", e.ID.String()), zap.Error(err))
		return nil, apperr.Upstream("could not start checkout", err)
	}
	if swapped {
		id := sess.ID
		e.StripeSessionID = &id
		return &ContinueResult{CheckoutURL: sess.URL}, nil
	}

	s.logger.Info("checkout session raced, reusing winner", zap.String("event_id", e.ID.String()), zap.String("discarded_session", sess.ID))
	current, err := s.store.GetForOrg(ctx, e.OrgID, e.ID)
	if err != nil {
		return nil, apperr.Upstream("could not start checkout", err)
	}
	if current.BillingStatus == models.BillingStatusPaid {
		return &ContinueResult{AlreadyPaid: true}, nil
	}
	if current.StripeSessionID != nil {
		if res, ok := s.reuseSession(ctx, current, *current.StripeSessionID); ok {
			e.StripeSessionID = current.StripeSessionID
			return res, nil
		}
	}
	return nil, apperr.Upstream("could not start checkout", errors.New("checkout session changed concurrently"))
}

// Get returns one event of the organization.
func (s *Service) Get(ctx context.Context, orgID, eventID uuid.UUID) (*models.Event, error) {
	return s.get(ctx, orgID, eventID)
}

// List returns the organization's events with guest and confirmation counts.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]models.EventSummary, error) {
	list, err := s.store.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, apperr.Upstream("could not list events", err)
	}
	if list == nil {
		list = []models.EventSummary{}
	}
	return list, nil
}

func (s *Service) get(ctx context.Context, orgID, eventID uuid.UUID) (*models.Event, error) {
	e, err := s.store.GetForOrg(ctx, orgID, eventID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("event not found")
		}
		return nil, apperr.Upstream("could not load event", err)
	}
	return e, nil
}

func normalizeKind(kind string) string {
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case "":
		return models.TemplateKindDefault
	case models.TemplateKindDefault, models.TemplateKindBirthday, models.TemplateKindWedding, models.TemplateKindOther:
		return k
	default:
		return models.TemplateKindOther
	}
}

func shapeGifts(kind string, in []GiftInput) []models.Gift {
	if kind == models.TemplateKindDefault {
		return nil
	}
	var out []models.Gift
	for _, g := range in {
		title := strings.TrimSpace(g.Title)
		if title == "" {
			continue
		}
		gift := models.Gift{Title: title, Link: strings.TrimSpace(g.Link), Position: len(out)}
		if g.PriceCents != nil && *g.PriceCents >= 0 {
			p := *g.PriceCents
			gift.PriceCents = &p
		}
		out = append(out, gift)
	}
	return out
}

func shapeRoles(kind string, in []RoleInput) ([]models.WeddingRole, error) {
	if kind != models.TemplateKindWedding {
		return nil, nil
	}
	var out []models.WeddingRole
	for _, r := range in {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(r.Role))
		if role != models.WeddingRoleGroomsman && role != models.WeddingRoleBridesmaid {
			return nil, apperr.Validation("wedding role must be padrinho or madrinha")
		}
		out = append(out, models.WeddingRole{Role: role, Name: name, Position: len(out)})
	}
	return out, nil
}
