// Package messaging renders invitation templates and delivers them over WhatsApp through the
// Evolution API. Sends are queued per guest and drained by the worker process.
package messaging

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/internal/models"
	"github.com/smartinvite/backend/pkg/apperr"
	"github.com/smartinvite/backend/pkg/database"
	"github.com/smartinvite/backend/pkg/queue"
)

var knownVariables = map[string]bool{
	"event_title": true, "event_description": true, "location": true, "starts_at": true,
	"ends_at": true, "rsvp_link": true, "name": true, "email": true, "phone": true, "tag": true,
}

// Store is the messaging persistence. Repository implements it.
type Store interface {
	CreateTemplate(ctx context.Context, t *models.MessageTemplate) error
	ListTemplates(ctx context.Context, orgID uuid.UUID) ([]models.MessageTemplate, error)
	GetTemplate(ctx context.Context, orgID, id uuid.UUID) (*models.MessageTemplate, error)
	CreateMessage(ctx context.Context, m *models.Message) error
	UpdateMessageStatus(ctx context.Context, id uuid.UUID, status string, patch map[string]interface{}) error
	UpsertInstance(ctx context.Context, in *models.WhatsAppInstance) error
	GetInstance(ctx context.Context, orgID uuid.UUID) (*models.WhatsAppInstance, error)
	UpdateInstanceStatus(ctx context.Context, orgID uuid.UUID, status string, qrCode *string) (bool, error)
}

// EventLookup resolves an event inside the caller's organization.
type EventLookup interface {
	GetForOrg(ctx context.Context, orgID, id uuid.UUID) (*models.Event, error)
}

// GuestLookup loads the selected guests of an event.
type GuestLookup interface {
	GetMany(ctx context.Context, orgID, eventID uuid.UUID, ids []uuid.UUID) ([]models.Guest, error)
}

// Enqueuer queues outbound messages. *queue.Queue implements it.
type Enqueuer interface {
	EnqueueWhatsAppSend(ctx context.Context, p queue.WhatsAppSendPayload) (string, error)
}

// InstanceProvider manages the organization's WhatsApp instance. *EvolutionClient implements it.
type InstanceProvider interface {
	CreateInstance(ctx context.Context, orgID uuid.UUID) (*InstanceResult, error)
	ConnectionStatus(ctx context.Context, instanceID string) (*ConnectionState, error)
	ValidateWebhookSecret(provided string) bool
}

// SendBatchInput selects the template and guests for one send.
type SendBatchInput struct {
	EventID    uuid.UUID
	TemplateID uuid.UUID
	GuestIDs   []uuid.UUID
}

// SendOutcome is the per-guest result of a batch.
type SendOutcome struct {
	GuestID   uuid.UUID  `json:"guestId"`
	GuestName string     `json:"guestName,omitempty"`
	Status    string     `json:"status"`
	MessageID *uuid.UUID `json:"messageId,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// BatchResult summarizes a batch.
type BatchResult struct {
	Queued  int           `json:"queued"`
	Failed  int           `json:"failed"`
	Results []SendOutcome `json:"results"`
}

// Service implements templates, batch sends and instance management.
type Service struct {
	store    Store
	events   EventLookup
	guests   GuestLookup
	queue    Enqueuer
	provider InstanceProvider
	rsvpLink func(token string) string
	logger   *zap.Logger
}

// NewService creates the messaging service. rsvpLink builds the public link for an event token.
func NewService(store Store, events EventLookup, guests GuestLookup, q Enqueuer, provider InstanceProvider, rsvpLink func(string) string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, events: events, guests: guests, queue: q, provider: provider, rsvpLink: rsvpLink, logger: logger}
}

// CreateTemplate validates and stores a template.
func (s *Service) CreateTemplate(ctx context.Context, orgID uuid.UUID, name, body, channel string) (*models.MessageTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(body) == "" {
		return nil, apperr.Validation("name and body text are required")
	}
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		channel = models.ChannelWhatsApp
	}
	if channel != models.ChannelWhatsApp {
		return nil, apperr.Validation("unsupported channel")
	}
	for _, v := range Variables(body) {
		if !knownVariables[v] {
			s.logger.Warn("template uses unknown variable", zap.String("template", name), zap.String("variable", v))
		}
	}
	t := &models.MessageTemplate{OrgID: orgID, Name: name, BodyText: body, Channel: channel}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, apperr.Upstream("could not create template", err)
	}
	return t, nil
}

// ListTemplates returns the organization's templates.
func (s *Service) ListTemplates(ctx context.Context, orgID uuid.UUID) ([]models.MessageTemplate, error) {
	list, err := s.store.ListTemplates(ctx, orgID)
	if err != nil {
		return nil, apperr.Upstream("could not list templates", err)
	}
	if list == nil {
		list = []models.MessageTemplate{}
	}
	return list, nil
}

// SendBatch renders the template for every selected guest, logs a message row and queues it.
// Guests that cannot receive a message are logged as failed; the batch itself still succeeds.
func (s *Service) SendBatch(ctx context.Context, orgID uuid.UUID, in SendBatchInput) (*BatchResult, error) {
	ids := dedupe(in.GuestIDs)
	if in.EventID == uuid.Nil || in.TemplateID == uuid.Nil || len(ids) == 0 {
		return nil, apperr.Validation("event ID, template ID, and guest IDs are required")
	}

	event, err := s.events.GetForOrg(ctx, orgID, in.EventID)
	if err != nil {
		return nil, notFoundOr(err, "event, template, or guests not found", "could not load event")
	}
	tpl, err := s.store.GetTemplate(ctx, orgID, in.TemplateID)
	if err != nil {
		return nil, notFoundOr(err, "event, template, or guests not found", "could not load template")
	}
	guests, err := s.guests.GetMany(ctx, orgID, in.EventID, ids)
	if err != nil {
		return nil, apperr.Upstream("could not load guests", err)
	}
	if len(guests) == 0 {
		return nil, apperr.NotFound("event, template, or guests not found")
	}
	instance, err := s.store.GetInstance(ctx, orgID)
	if err != nil {
		return nil, notFoundOr(err, "", "could not load WhatsApp instance", apperr.InvalidState("WhatsApp instance not configured"))
	}

	byID := make(map[uuid.UUID]models.Guest, len(guests))
	for _, g := range guests {
		byID[g.ID] = g
	}
	link := ""
	if s.rsvpLink != nil {
		link = s.rsvpLink(event.RSVPToken)
	}

	res := &BatchResult{Results: make([]SendOutcome, 0, len(ids))}
	for _, id := range ids {
		g, ok := byID[id]
		if !ok {
			res.add(SendOutcome{GuestID: id, Status: models.MessageStatusFailed, Error: "guest not found"})
			continue
		}
		res.add(s.queueOne(ctx, event, tpl, instance, &g, link))
	}
	s.logger.Info("message batch processed",
		zap.String("event_id", event.ID.String()),
		zap.String("template_id", tpl.ID.String()),
		zap.Int("queued", res.Queued),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) queueOne(ctx context.Context, e *models.Event, tpl *models.MessageTemplate, inst *models.WhatsAppInstance, g *models.Guest, link string) SendOutcome {
	out := SendOutcome{GuestID: g.ID, GuestName: g.Name}
	text := Render(tpl.BodyText, EventVariables(e, g, link))

	msg := &models.Message{OrgID: e.OrgID, EventID: e.ID, GuestID: g.ID, Status: models.MessageStatusQueued}
	payload := map[string]interface{}{"templateId": tpl.ID, "message": text}
	if g.PhoneE164 == nil || *g.PhoneE164 == "" {
		msg.Status = models.MessageStatusFailed
		payload["error"] = "guest has no phone number"
	} else {
		payload["to"] = *g.PhoneE164
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encode message payload", zap.String("guest_id", g.ID.String()), zap.Error(err))
		out.Status = models.MessageStatusFailed
		out.Error = "could not record message"
		return out
	}
	msg.Payload = raw

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		s.logger.Error("log message failed", zap.String("guest_id", g.ID.String()), zap.Error(err))
		out.Status = models.MessageStatusFailed
		out.Error = "could not record message"
		return out
	}
	id := msg.ID
	out.MessageID = &id
	if msg.Status == models.MessageStatusFailed {
		out.Status = models.MessageStatusFailed
		out.Error = "guest has no phone number"
		return out
	}

	_, err = s.queue.EnqueueWhatsAppSend(ctx, queue.WhatsAppSendPayload{
		MessageID:  msg.ID,
		OrgID:      e.OrgID,
		EventID:    e.ID,
		GuestID:    g.ID,
		InstanceID: inst.InstanceID,
		To:         *g.PhoneE164,
		Message:    text,
	})
	if err != nil {
		s.logger.Error("enqueue message failed", zap.String("message_id", msg.ID.String()), zap.Error(err))
		if uerr := s.store.UpdateMessageStatus(ctx, msg.ID, models.MessageStatusFailed, map[string]interface{}{"error": "queue unavailable"}); uerr != nil {
			s.logger.Error("mark message failed", zap.String("message_id", msg.ID.String()), zap.Error(uerr))
		}
		out.Status = models.MessageStatusFailed
		out.Error = "queue unavailable"
		return out
	}
	out.Status = models.MessageStatusQueued
	return out
}

func (r *BatchResult) add(o SendOutcome) {
	if o.Status == models.MessageStatusQueued {
		r.Queued++
	} else {
		r.Failed++
	}
	r.Results = append(r.Results, o)
}

// ProvisionInstance creates the organization's WhatsApp instance and stores it.
func (s *Service) ProvisionInstance(ctx context.Context, orgID uuid.UUID) (*models.WhatsAppInstance, error) {
	created, err := s.provider.CreateInstance(ctx, orgID)
	if err != nil {
		return nil, apperr.Upstream("could not create WhatsApp instance", err)
	}
	in := &models.WhatsAppInstance{
		OrgID:      orgID,
		InstanceID: created.InstanceID,
		Status:     created.Status,
		QRCode:     created.QRCode,
		WebhookURL: created.WebhookURL,
	}
	if err := s.store.UpsertInstance(ctx, in); err != nil {
		return nil, apperr.Upstream("could not store WhatsApp instance", err)
	}
	s.logger.Info("whatsapp instance provisioned", zap.String("org_id", orgID.String()), zap.String("instance_id", in.InstanceID))
	return in, nil
}

// Instance returns the organization's instance with its live connection status. Without an
// instance one is provisioned.
func (s *Service) Instance(ctx context.Context, orgID uuid.UUID) (*models.WhatsAppInstance, error) {
	in, err := s.store.GetInstance(ctx, orgID)
	if err != nil {
		if database.IsNotFound(err) {
			return s.ProvisionInstance(ctx, orgID)
		}
		return nil, apperr.Upstream("could not load WhatsApp instance", err)
	}
	st, err := s.provider.ConnectionStatus(ctx, in.InstanceID)
	if err != nil {
		s.logger.Warn("connection status unavailable", zap.String("instance_id", in.InstanceID), zap.Error(err))
		return in, nil
	}
	if st.Status != in.Status || st.QRCode != nil {
		in.Status, in.QRCode = st.Status, st.QRCode
		if _, err := s.store.UpdateInstanceStatus(ctx, orgID, in.Status, in.QRCode); err != nil {
			s.logger.Warn("store connection status", zap.String("org_id", orgID.String()), zap.Error(err))
		}
	}
	return in, nil
}

// EvolutionWebhook is a callback body from Evolution.
type EvolutionWebhook struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// HandleWebhook authenticates and applies an Evolution callback for an organization.
func (s *Service) HandleWebhook(ctx context.Context, secret, org string, hook EvolutionWebhook) error {
	if !s.provider.ValidateWebhookSecret(secret) {
		return apperr.Auth("invalid webhook secret")
	}
	orgID, err := uuid.Parse(org)
	if err != nil {
		return apperr.Validation("invalid org")
	}
	switch hook.Event {
	case "connection.update":
		var data struct {
			State  string `json:"state"`
			QRCode *struct {
				Base64 string `json:"base64"`
			} `json:"qrcode"`
		}
		if err := json.Unmarshal(hook.Data, &data); err != nil || data.State == "" {
			return apperr.Validation("invalid connection update")
		}
		var qr *string
		if data.QRCode != nil && data.QRCode.Base64 != "" {
			qr = &data.QRCode.Base64
		}
		found, err := s.store.UpdateInstanceStatus(ctx, orgID, data.State, qr)
		if err != nil {
			return apperr.Upstream("could not update instance", err)
		}
		s.logger.Info("whatsapp connection update", zap.String("org_id", orgID.String()), zap.String("state", data.State), zap.Bool("known", found))
	case "messages.upsert":
		s.logger.Debug("incoming whatsapp message", zap.String("org_id", orgID.String()))
	default:
		s.logger.Debug("evolution webhook ignored", zap.String("event", hook.Event))
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// notFoundOr maps a no-rows error to notFound (or to override when given) and anything else
// to an upstream error.
func notFoundOr(err error, notFoundMsg, upstreamMsg string, override ...error) error {
	if database.IsNotFound(err) {
		if len(override) > 0 {
			return override[0]
		}
		return apperr.NotFound(notFoundMsg)
	}
	return apperr.Upstream(upstreamMsg, err)
}
