package organizations

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/internal/middleware"
	"github.com/smartinvite/backend/internal/models"
	"github.com/smartinvite/backend/pkg/database"
	"github.com/smartinvite/backend/pkg/response"
)

// Lookup resolves the caller's organization. Repository implements it.
type Lookup interface {
	OrgForUser(ctx context.Context, userID uuid.UUID) (*models.Organization, error)
}

// RequireOrganization resolves the authenticated user's organization and stores its ID under
// middleware.ContextOrganizationID. Call after JWT. Users without a membership get 401.
func RequireOrganization(orgs Lookup, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		userID, ok := c.Get(middleware.ContextUserID)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		org, err := orgs.OrgForUser(c.Request.Context(), userID.(uuid.UUID))
		if err != nil {
			if database.IsNotFound(err) {
				response.Unauthorized(c, "organization not found for user")
			} else {
				logger.Error("resolve organization", zap.Error(err))
				response.Internal(c, "failed to resolve organization")
			}
			c.Abort()
			return
		}
		c.Set(middleware.ContextOrganizationID, org.ID)
		c.Next()
	}
}
