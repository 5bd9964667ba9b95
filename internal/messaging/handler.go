package messaging

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/internal/middleware"
	"github.com/smartinvite/backend/pkg/apperr"
	"github.com/smartinvite/backend/pkg/response"
)

// CreateTemplateRequest is the body for POST /templates.
type CreateTemplateRequest struct {
	Name     string `json:"name" binding:"required"`
	BodyText string `json:"bodyText" binding:"required"`
	Channel  string `json:"channel"`
}

// SendRequest is the body for POST /messages/send.
type SendRequest struct {
	EventID    string   `json:"eventId" binding:"required"`
	TemplateID string   `json:"templateId" binding:"required"`
	GuestIDs   []string `json:"guestIds" binding:"required,min=1"`
}

// Handler serves template, send and Evolution webhook endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a messaging handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// ListTemplates handles GET /templates.
func (h *Handler) ListTemplates(c *gin.Context) {
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	list, err := h.svc.ListTemplates(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("list templates", zap.Error(err))
		response.Error(c, err, "failed to list templates")
		return
	}
	response.OK(c, list)
}

// CreateTemplate handles POST /templates.
func (h *Handler) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name and bodyText are required")
		return
	}
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	t, err := h.svc.CreateTemplate(c.Request.Context(), orgID, req.Name, req.BodyText, req.Channel)
	if err != nil {
		response.Error(c, err, "failed to create template")
		return
	}
	response.Created(c, t)
}

// Send handles POST /messages/send.
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "eventId, templateId, and guestIds are required")
		return
	}
	eventID, err1 := uuid.Parse(req.EventID)
	templateID, err2 := uuid.Parse(req.TemplateID)
	if err1 != nil || err2 != nil {
		response.BadRequest(c, "invalid event or template id")
		return
	}
	guestIDs := make([]uuid.UUID, 0, len(req.GuestIDs))
	for _, raw := range req.GuestIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid guest id")
			return
		}
		guestIDs = append(guestIDs, id)
	}

	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	res, err := h.svc.SendBatch(c.Request.Context(), orgID, SendBatchInput{
		EventID:    eventID,
		TemplateID: templateID,
		GuestIDs:   guestIDs,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindUpstream) {
			h.logger.Error("send batch", zap.String("event_id", eventID.String()), zap.Error(err))
		}
		response.Error(c, err, "failed to send messages")
		return
	}
	response.OK(c, res)
}

// Instance handles GET /whatsapp/instance.
func (h *Handler) Instance(c *gin.Context) {
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	in, err := h.svc.Instance(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("whatsapp instance", zap.String("org_id", orgID.String()), zap.Error(err))
		response.Error(c, err, "failed to load WhatsApp instance")
		return
	}
	response.OK(c, in)
}

// Webhook handles POST /webhooks/evolution?secret=&org=.
func (h *Handler) Webhook(c *gin.Context) {
	var hook EvolutionWebhook
	if err := c.ShouldBindJSON(&hook); err != nil {
		response.BadRequest(c, "invalid payload")
		return
	}
	if err := h.svc.HandleWebhook(c.Request.Context(), c.Query("secret"), c.Query("org"), hook); err != nil {
		if apperr.Is(err, apperr.KindUpstream) {
			h.logger.Error("evolution webhook", zap.Error(err))
		}
		response.Error(c, err, "failed to process webhook")
		return
	}
	response.OK(c, gin.H{"received": true})
}
