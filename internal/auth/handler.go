package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/internal/models"
	"github.com/smartinvite/backend/pkg/database"
	"github.com/smartinvite/backend/pkg/response"
	"github.com/smartinvite/backend/pkg/utils"
)

// ContextUserID is the gin context key the JWT middleware stores the user ID under.
const ContextUserID = "user_id"

// UserStore is the user persistence used by the handler.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash, fullName string) (*models.User, error)
}

// OrganizationStore creates the organizer's organization and resolves membership.
type OrganizationStore interface {
	CreateWithOwner(ctx context.Context, name string, ownerID uuid.UUID) (*models.Organization, error)
	OrgForUser(ctx context.Context, userID uuid.UUID) (*models.Organization, error)
}

// InstanceProvisioner sets up the organization's WhatsApp instance.
type InstanceProvisioner interface {
	ProvisionInstance(ctx context.Context, orgID uuid.UUID) (*models.WhatsAppInstance, error)
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required"`
	FullName         string `json:"full_name" binding:"required"`
	OrganizationName string `json:"organization_name"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token        string               `json:"token"`
	User         models.UserPublic    `json:"user"`
	Organization *models.Organization `json:"organization,omitempty"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users     UserStore
	orgs      OrganizationStore
	instances InstanceProvisioner
	jwt       *JWTService
	logger    *zap.Logger
}

// NewHandler creates an auth handler. instances may be nil.
func NewHandler(users UserStore, orgs OrganizationStore, instances InstanceProvisioner, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, orgs: orgs, instances: instances, jwt: jwt, logger: logger}
}

// Register handles POST /auth/register: user, organization, owner membership and a
// best-effort WhatsApp instance.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		response.BadRequest(c, "full_name is required")
		return
	}

	if _, err := h.users.GetByEmail(ctx, email); err == nil {
		response.Conflict(c, "email already registered")
		return
	} else if !database.IsNotFound(err) {
		h.logger.Error("lookup user by email", zap.Error(err))
		response.Internal(c, "failed to register")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooShort) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Internal(c, "failed to hash password")
		return
	}
	user, err := h.users.Create(ctx, email, hash, fullName)
	if err != nil {
		if database.IsUniqueViolation(err) {
			response.Conflict(c, "email already registered")
			return
		}
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	orgName := strings.TrimSpace(req.OrganizationName)
	if orgName == "" {
		orgName = fullName
	}
	org, err := h.orgs.CreateWithOwner(ctx, orgName, user.ID)
	if err != nil {
		h.logger.Error("create organization", zap.String("user_id", user.ID.String()), zap.Error(err))
		response.Internal(c, "failed to create organization")
		return
	}

	if h.instances != nil {
		if _, err := h.instances.ProvisionInstance(ctx, org.ID); err != nil {
			h.logger.Warn("whatsapp instance provisioning failed", zap.String("org_id", org.ID.String()), zap.Error(err))
		}
	}

	token, err := h.jwt.Generate(user.ID, user.Email)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("organizer registered", zap.String("user_id", user.ID.String()), zap.String("org_id", org.ID.String()))
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic(), Organization: org})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	userID := c.MustGet(ContextUserID).(uuid.UUID)
	ctx := c.Request.Context()
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		if database.IsNotFound(err) {
			response.Unauthorized(c, "user not found")
			return
		}
		response.Internal(c, "failed to load user")
		return
	}
	out := gin.H{"user": user.ToPublic()}
	if org, err := h.orgs.OrgForUser(ctx, userID); err == nil {
		out["organization"] = org
	} else if !database.IsNotFound(err) {
		h.logger.Error("load organization", zap.String("user_id", userID.String()), zap.Error(err))
	}
	response.OK(c, out)
}
