package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartinvite/backend/internal/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newHandlerRouter(svc *Service, orgID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, uuid.New())
		c.Set(middleware.ContextOrganizationID, orgID)
		c.Next()
	})
	h := NewHandler(svc, nil)
	r.POST("/events", h.Create)
	r.GET("/events", h.List)
	r.GET("/events/:id", h.GetByID)
	r.POST("/billing/checkout/continue", h.ContinuePayment)
	return r
}

func doJSON(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestCreateHandlerAcceptsStringGuestCount(t *testing.T) {
	svc, _, _ := newTestService()
	r := newHandlerRouter(svc, uuid.New())

	w, env := doJSON(r, http.MethodPost, "/events", `{"title":"Festa","startsAt":"2026-12-01T20:00","guests":"26"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		RequiresPayment bool   `json:"requiresPayment"`
		CheckoutURL     string `json:"checkoutUrl"`
		Event           struct {
			BillingTier string `json:"billing_tier"`
		} `json:"event"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.RequiresPayment)
	assert.NotEmpty(t, data.CheckoutURL)
	assert.Equal(t, "up_to_50", data.Event.BillingTier)

	w, env = doJSON(r, http.MethodPost, "/events", `{"title":"Festa","startsAt":"2026-12-01T20:00","guests":"abc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.False(t, data.RequiresPayment)
}

func TestCreateHandlerValidation(t *testing.T) {
	svc, _, _ := newTestService()
	r := newHandlerRouter(svc, uuid.New())

	w, env := doJSON(r, http.MethodPost, "/events", `{"startsAt":"2026-12-01T20:00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "title is required", env.Error)
}

func TestContinueHandler(t *testing.T) {
	svc, _, _ := newTestService()
	orgID := uuid.New()
	r := newHandlerRouter(svc, orgID)

	w, _ := doJSON(r, http.MethodPost, "/billing/checkout/continue", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(r, http.MethodPost, "/billing/checkout/continue", `{"eventId":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, env := doJSON(r, http.MethodPost, "/events", `{"title":"Grátis","startsAt":"2026-12-01","guests":3}`)
	var created struct {
		Event struct {
			ID string `json:"id"`
		} `json:"event"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	w, env = doJSON(r, http.MethodPost, "/billing/checkout/continue", `{"eventId":"`+created.Event.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "event does not require payment", env.Error)
}
