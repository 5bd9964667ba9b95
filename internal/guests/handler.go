package guests

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smartinvite/backend/internal/middleware"
	"github.com/smartinvite/backend/pkg/response"
)

// AddRequest is the body for POST /guests.
type AddRequest struct {
	EventID string `json:"eventId" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"omitempty,email"`
	Phone   string `json:"phone"`
	Tag     string `json:"tag"`
}

// Handler serves organizer guest endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a guests handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Add handles POST /guests.
func (h *Handler) Add(c *gin.Context) {
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "eventId and name are required")
		return
	}
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	g, err := h.svc.Add(c.Request.Context(), orgID, AddInput{
		EventID: eventID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Tag:     req.Tag,
	})
	if err != nil {
		response.Error(c, err, "failed to create guest")
		return
	}
	response.Created(c, g)
}

// ListByEvent handles GET /events/:id/guests.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	list, err := h.svc.List(c.Request.Context(), orgID, eventID)
	if err != nil {
		response.Error(c, err, "failed to list guests")
		return
	}
	response.OK(c, list)
}
