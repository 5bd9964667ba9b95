package rsvp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartinvite/backend/internal/models"
	"github.com/smartinvite/backend/pkg/apperr"
)

type tokenFinder map[string]*models.Event

func (f tokenFinder) GetByToken(_ context.Context, token string) (*models.Event, error) {
	if e, ok := f[token]; ok {
		return e, nil
	}
	return nil, pgx.ErrNoRows
}

// fakeStore accepts only the statuses in allowed, mimicking a CHECK constraint.
type fakeStore struct {
	allowed     map[string]bool
	guests      []models.Guest
	rsvps       map[uuid.UUID]*models.RSVP
	attempts    []string
	failGuestAt string
	failRSVPAt  string
	updateErr   error
}

func newFakeStore(allowed ...string) *fakeStore {
	f := &fakeStore{allowed: map[string]bool{models.RSVPStatusPending: true}, rsvps: make(map[uuid.UUID]*models.RSVP)}
	for _, s := range allowed {
		f.allowed[s] = true
	}
	return f
}

// CreateGuestWithRSVP stores both rows or neither, like the repository's transaction.
func (f *fakeStore) CreateGuestWithRSVP(_ context.Context, g *models.Guest) (*models.RSVP, error) {
	if f.failGuestAt != "" && g.Name == f.failGuestAt {
		return nil, errors.New("insert guest: failed")
	}
	if f.failRSVPAt != "" && g.Name == f.failRSVPAt {
		return nil, errors.New("insert rsvp: failed")
	}
	g.ID = uuid.New()
	f.guests = append(f.guests, *g)
	rs := &models.RSVP{ID: uuid.New(), EventID: g.EventID, GuestID: g.ID, Status: models.RSVPStatusPending}
	f.rsvps[rs.ID] = rs
	return rs, nil
}

func (f *fakeStore) guestNames() []string {
	var names []string
	for _, g := range f.guests {
		names = append(names, g.Name)
	}
	return names
}

func (f *fakeStore) UpdateRSVPStatus(_ context.Context, id uuid.UUID, status string) error {
	f.attempts = append(f.attempts, status)
	if f.updateErr != nil {
		return f.updateErr
	}
	if !f.allowed[status] {
		return &pgconn.PgError{Code: "23514", Message: "new row violates check constraint"}
	}
	f.rsvps[id].Status = status
	return nil
}

func (f *fakeStore) statusOf(guestID uuid.UUID) string {
	for _, rs := range f.rsvps {
		if rs.GuestID == guestID {
			return rs.Status
		}
	}
	return ""
}

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) BroadcastToEventAndPublish(_ uuid.UUID, event string, _ interface{}) {
	n.events = append(n.events, event)
}

func fixture(allowed ...string) (*Service, *fakeStore, *recordingNotifier, *models.Event) {
	e := &models.Event{ID: uuid.New(), OrgID: uuid.New(), Title: "Casamento", RSVPToken: "tok_abc"}
	store := newFakeStore(allowed...)
	n := &recordingNotifier{}
	return NewService(tokenFinder{e.RSVPToken: e}, store, n, nil), store, n, e
}

func TestConfirmCreatesPrimaryAndCompanions(t *testing.T) {
	svc, store, n, e := fixture(models.RSVPStatusConfirmed)

	res, err := svc.Confirm(context.Background(), ConfirmInput{
		Token:      " tok_abc ",
		Name:       "  Ana ",
		Companions: []string{" Bia ", "", "   ", "Caio", "Bia"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Ana", res.Guest.Name)
	assert.Nil(t, res.Guest.CompanionOf)
	assert.Equal(t, e.ID, res.Guest.EventID)
	assert.Equal(t, e.OrgID, res.Guest.OrgID)
	assert.Equal(t, models.RSVPStatusConfirmed, res.Guest.Status)

	require.Len(t, res.Companions, 3)
	names := []string{res.Companions[0].Name, res.Companions[1].Name, res.Companions[2].Name}
	assert.Equal(t, []string{"Bia", "Caio", "Bia"}, names)
	for _, c := range res.Companions {
		require.NotNil(t, c.CompanionOf)
		assert.Equal(t, res.Guest.ID, *c.CompanionOf)
		assert.Equal(t, models.RSVPStatusConfirmed, store.statusOf(c.ID))
	}
	assert.Len(t, store.guests, 4)
	assert.Equal(t, []string{"rsvp.confirmed"}, n.events)
}

func TestConfirmFallsBackThroughStatusCandidates(t *testing.T) {
	svc, store, _, _ := fixture("attending")

	res, err := svc.Confirm(context.Background(), ConfirmInput{Token: "tok_abc", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "attending", res.Guest.Status)
	assert.Equal(t, []string{"confirmed", "yes", "accepted", "attending"}, store.attempts)
}

func TestConfirmAllCandidatesRejectedStaysPending(t *testing.T) {
	svc, store, _, _ := fixture()

	res, err := svc.Confirm(context.Background(), ConfirmInput{Token: "tok_abc", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, models.RSVPStatusPending, res.Guest.Status)
	assert.Equal(t, models.RSVPStatusPending, store.statusOf(res.Guest.ID))
	assert.Len(t, store.attempts, len(statusCandidates))
}

func TestConfirmUnexpectedUpdateErrorStopsUpgrade(t *testing.T) {
	svc, store, _, _ := fixture(models.RSVPStatusConfirmed)
	store.updateErr = errors.New("connection reset")

	res, err := svc.Confirm(context.Background(), ConfirmInput{Token: "tok_abc", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, models.RSVPStatusPending, res.Guest.Status)
	assert.Len(t, store.attempts, 1)
}

func TestConfirmSkipsFailingCompanion(t *testing.T) {
	svc, store, _, _ := fixture(models.RSVPStatusConfirmed)
	store.failGuestAt = "Bia"

	res, err := svc.Confirm(context.Background(), ConfirmInput{Token: "tok_abc", Name: "Ana", Companions: []string{"Bia", "Caio"}})
	require.NoError(t, err)
	require.Len(t, res.Companions, 1)
	assert.Equal(t, "Caio", res.Companions[0].Name)
}

func TestConfirmPrimaryFailureIsUpstream(t *testing.T) {
	svc, store, n, _ := fixture(models.RSVPStatusConfirmed)
	store.failGuestAt = "Ana"

	_, err := svc.Confirm(context.Background(), ConfirmInput{Token: "tok_abc", Name: "Ana", Companions: []string{"Bia"}})
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Empty(t, store.guests)
	assert.Empty(t, n.events)
}

func TestConfirmCompanionRSVPFailureLeavesNoOrphan(t *testing.T) {
	svc, store, _, _ := fixture(models.RSVPStatusConfirmed)
	store.failRSVPAt = "Bia"

	res, err := svc.Confirm(context.Background(), ConfirmInput{Token: "tok_abc", Name: "Ana", Companions: []string{"Bia", "Caio"}})
	require.NoError(t, err)
	assert.Equal(t, models.RSVPStatusConfirmed, res.Guest.Status)
	require.Len(t, res.Companions, 1)
	assert.Equal(t, "Caio", res.Companions[0].Name)
	assert.Equal(t, models.RSVPStatusConfirmed, res.Companions[0].Status)

	assert.Equal(t, []string{"Ana", "Caio"}, store.guestNames())
	assert.Len(t, store.rsvps, 2)
	for _, g := range store.guests {
		assert.Equal(t, models.RSVPStatusConfirmed, store.statusOf(g.ID), g.Name)
	}
}

func TestConfirmPrimaryRSVPFailureLeavesNoGuest(t *testing.T) {
	svc, store, n, _ := fixture(models.RSVPStatusConfirmed)
	store.failRSVPAt = "Ana"

	_, err := svc.Confirm(context.Background(), ConfirmInput{Token: "tok_abc", Name: "Ana"})
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Empty(t, store.guests)
	assert.Empty(t, store.rsvps)
	assert.Empty(t, n.events)

	store.failRSVPAt = ""
	res, err := svc.Confirm(context.Background(), ConfirmInput{Token: "tok_abc", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana"}, store.guestNames())
	assert.Equal(t, models.RSVPStatusConfirmed, store.statusOf(res.Guest.ID))
}

func TestConfirmValidationAndUnknownToken(t *testing.T) {
	svc, store, _, _ := fixture(models.RSVPStatusConfirmed)

	_, err := svc.Confirm(context.Background(), ConfirmInput{Token: "tok_abc", Name: "   "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.Confirm(context.Background(), ConfirmInput{Token: " ", Name: "Ana"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Confirm(context.Background(), ConfirmInput{Token: "nope", Name: "Ana"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, store.guests)
	assert.Empty(t, store.rsvps)
}

func TestConfirmIsNotIdempotent(t *testing.T) {
	svc, store, _, _ := fixture(models.RSVPStatusConfirmed)
	in := ConfirmInput{Token: "tok_abc", Name: "Ana"}

	first, err := svc.Confirm(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.Confirm(context.Background(), in)
	require.NoError(t, err)
	assert.NotEqual(t, first.Guest.ID, second.Guest.ID)
	assert.Len(t, store.guests, 2)
}

func TestLookup(t *testing.T) {
	svc, _, _, e := fixture()
	pub, err := svc.Lookup(context.Background(), "tok_abc")
	require.NoError(t, err)
	assert.Equal(t, e.ID, pub.ID)
	assert.Equal(t, "Casamento", pub.Title)

	_, err = svc.Lookup(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _, _ := fixture(models.RSVPStatusConfirmed)
	h := NewHandler(svc)
	r := gin.New()
	r.GET("/public/rsvp/:token", h.Lookup)
	r.POST("/public/rsvp/confirm", h.Confirm)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public/rsvp/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public/rsvp/tok_abc", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "billing_status")

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/public/rsvp/confirm", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusBadRequest, post(`{"token":"tok_abc","name":""}`).Code)
	assert.Equal(t, http.StatusNotFound, post(`{"token":"other","name":"Ana"}`).Code)

	w = post(`{"token":"tok_abc","name":"Ana","companions":["Bia"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Message    string           `json:"message"`
			Guest      ConfirmedGuest   `json:"guest"`
			Companions []ConfirmedGuest `json:"companions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Ana", body.Data.Guest.Name)
	require.Len(t, body.Data.Companions, 1)
	assert.Equal(t, body.Data.Guest.ID, *body.Data.Companions[0].CompanionOf)
}
