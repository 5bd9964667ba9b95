package rsvp

import (
	"github.com/gin-gonic/gin"

	"github.com/smartinvite/backend/pkg/response"
)

// ConfirmRequest is the body for POST /public/rsvp/confirm.
type ConfirmRequest struct {
	Token      string   `json:"token"`
	Name       string   `json:"name"`
	Companions []string `json:"companions"`
}

type confirmResponse struct {
	Message    string           `json:"message"`
	Guest      ConfirmedGuest   `json:"guest"`
	Companions []ConfirmedGuest `json:"companions"`
}

// Handler serves the public RSVP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a public RSVP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Lookup handles GET /public/rsvp/:token.
func (h *Handler) Lookup(c *gin.Context) {
	e, err := h.svc.Lookup(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err, "failed to load event")
		return
	}
	response.OK(c, e)
}

// Confirm handles POST /public/rsvp/confirm.
func (h *Handler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request")
		return
	}
	res, err := h.svc.Confirm(c.Request.Context(), ConfirmInput{
		Token:      req.Token,
		Name:       req.Name,
		Companions: req.Companions,
	})
	if err != nil {
		response.Error(c, err, "failed to confirm attendance")
		return
	}
	response.OK(c, confirmResponse{
		Message:    "attendance confirmed",
		Guest:      res.Guest,
		Companions: res.Companions,
	})
}
