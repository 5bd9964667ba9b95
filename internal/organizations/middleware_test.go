package organizations

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/smartinvite/backend/internal/middleware"
	"github.com/smartinvite/backend/internal/models"
)

type lookupFunc func(ctx context.Context, userID uuid.UUID) (*models.Organization, error)

func (f lookupFunc) OrgForUser(ctx context.Context, userID uuid.UUID) (*models.Organization, error) {
	return f(ctx, userID)
}

func TestRequireOrganization(t *testing.T) {
	gin.SetMode(gin.TestMode)
	member, stranger, broken := uuid.New(), uuid.New(), uuid.New()
	orgID := uuid.New()
	lookup := lookupFunc(func(_ context.Context, userID uuid.UUID) (*models.Organization, error) {
		switch userID {
		case member:
			return &models.Organization{ID: orgID}, nil
		case broken:
			return nil, errors.New("connection reset")
		}
		return nil, pgx.ErrNoRows
	})

	run := func(userID *uuid.UUID) *httptest.ResponseRecorder {
		r := gin.New()
		r.GET("/events", func(c *gin.Context) {
			if userID != nil {
				c.Set(middleware.ContextUserID, *userID)
			}
			c.Next()
		}, RequireOrganization(lookup, nil), func(c *gin.Context) {
			c.String(http.StatusOK, c.MustGet(middleware.ContextOrganizationID).(uuid.UUID).String())
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
		return w
	}

	w := run(&member)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orgID.String(), w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, run(&stranger).Code)
	assert.Equal(t, http.StatusInternalServerError, run(&broken).Code)
	assert.Equal(t, http.StatusUnauthorized, run(nil).Code)
}
