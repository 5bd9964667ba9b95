package events

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/internal/middleware"
	"github.com/smartinvite/backend/internal/models"
	"github.com/smartinvite/backend/internal/pricing"
	"github.com/smartinvite/backend/pkg/response"
)

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Location       string             `json:"location"`
	StartsAt       string             `json:"startsAt"`
	Guests         pricing.GuestCount `json:"guests"`
	AllowCompanion bool               `json:"allowCompanion"`
	TemplateKind   string             `json:"templateKind"`
	InitialGifts   []GiftInput        `json:"initialGifts"`
	InitialRoles   []RoleInput        `json:"initialRoles"`
}

// ContinueRequest is the body for POST /billing/checkout/continue.
type ContinueRequest struct {
	EventID string `json:"eventId" binding:"required"`
}

type createResponse struct {
	RequiresPayment bool          `json:"requiresPayment"`
	CheckoutURL     string        `json:"checkoutUrl,omitempty"`
	Event           *models.Event `json:"event"`
}

type continueResponse struct {
	CheckoutURL string `json:"checkoutUrl,omitempty"`
	AlreadyPaid bool   `json:"alreadyPaid,omitempty"`
}

// Handler serves organizer event endpoints. Routes run behind JWT and RequireOrganization.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	res, err := h.svc.Create(c.Request.Context(), orgID, userID, CreateInput{
		Title:          req.Title,
		Description:    req.Description,
		Location:       req.Location,
		StartsAt:       req.StartsAt,
		Guests:         int(req.Guests),
		AllowCompanion: req.AllowCompanion,
		TemplateKind:   req.TemplateKind,
		Gifts:          req.InitialGifts,
		Roles:          req.InitialRoles,
	})
	if err != nil {
		response.Error(c, err, "failed to create event")
		return
	}
	response.OK(c, createResponse{
		RequiresPayment: res.RequiresPayment,
		CheckoutURL:     res.CheckoutURL,
		Event:           res.Event,
	})
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	list, err := h.svc.List(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("list events", zap.String("org_id", orgID.String()), zap.Error(err))
		response.Error(c, err, "failed to list events")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	e, err := h.svc.Get(c.Request.Context(), orgID, id)
	if err != nil {
		response.Error(c, err, "failed to load event")
		return
	}
	response.OK(c, e)
}

// ContinuePayment handles POST /billing/checkout/continue.
func (h *Handler) ContinuePayment(c *gin.Context) {
	var req ContinueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "eventId is required")
		return
	}
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	res, err := h.svc.ContinuePayment(c.Request.Context(), orgID, eventID)
	if err != nil {
		response.Error(c, err, "failed to continue payment")
		return
	}
	response.OK(c, continueResponse{CheckoutURL: res.CheckoutURL, AlreadyPaid: res.AlreadyPaid})
}

// Tiers handles GET /billing/tiers.
func (h *Handler) Tiers(c *gin.Context) {
	response.OK(c, pricing.Tiers())
}
