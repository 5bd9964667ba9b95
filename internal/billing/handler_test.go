package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartinvite/backend/internal/models"
)

const testSecret = "whsec_test_secret"

type fakePaymentStore struct {
	mu     sync.Mutex
	status map[uuid.UUID]string
	calls  int
	err    error
}

func newFakePaymentStore(ids ...uuid.UUID) *fakePaymentStore {
	f := &fakePaymentStore{status: make(map[uuid.UUID]string)}
	for _, id := range ids {
		f.status[id] = models.BillingStatusPendingPayment
	}
	return f
}

func (f *fakePaymentStore) MarkPaid(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	st, ok := f.status[id]
	if !ok || st == models.BillingStatusPaid {
		return false, nil
	}
	f.status[id] = models.BillingStatusPaid
	return true, nil
}

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) BroadcastToEventAndPublish(_ uuid.UUID, event string, _ interface{}) {
	n.events = append(n.events, event)
}

func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts.Unix())))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func completedPayload(eventID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_1", "object": "checkout.session", "metadata": {"event_id": %q, "tier": "up_to_50"}}}
	}`, eventID))
}

func newTestRouter(verifier WebhookVerifier, store PaymentStore, notifier Notifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewWebhookHandler(verifier, NewReconciler(store, notifier, nil), nil)
	r.POST("/billing/webhook", h.Webhook)
	return r
}

func postWebhook(r *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(string(payload)))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookMarksEventPaid(t *testing.T) {
	eventID := uuid.New()
	store := newFakePaymentStore(eventID)
	notifier := &recordingNotifier{}
	r := newTestRouter(NewStripeVerifier(testSecret), store, notifier)

	payload := completedPayload(eventID.String())
	w := postWebhook(r, payload, signPayload(payload, testSecret, time.Now()))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	assert.Equal(t, models.BillingStatusPaid, store.status[eventID])
	assert.Equal(t, []string{"event.paid"}, notifier.events)
}

func TestWebhookReplayIsNoOp(t *testing.T) {
	eventID := uuid.New()
	store := newFakePaymentStore(eventID)
	notifier := &recordingNotifier{}
	r := newTestRouter(NewStripeVerifier(testSecret), store, notifier)

	payload := completedPayload(eventID.String())
	for i := 0; i < 2; i++ {
		w := postWebhook(r, payload, signPayload(payload, testSecret, time.Now()))
		require.Equal(t, http.StatusOK, w.Code, "attempt %d: %s", i, w.Body.String())
	}
	assert.Equal(t, models.BillingStatusPaid, store.status[eventID])
	assert.Equal(t, 2, store.calls)
	assert.Len(t, notifier.events, 1)
}

func TestWebhookInvalidSignatureNeverMutates(t *testing.T) {
	eventID := uuid.New()
	store := newFakePaymentStore(eventID)
	r := newTestRouter(NewStripeVerifier(testSecret), store, nil)
	payload := completedPayload(eventID.String())

	cases := map[string]string{
		"missing":      "",
		"wrong secret": signPayload(payload, "whsec_other", time.Now()),
		"expired":      signPayload(payload, testSecret, time.Now().Add(-time.Hour)),
		"garbage":      "t=abc,v1=zzz",
	}
	for name, sig := range cases {
		w := postWebhook(r, payload, sig)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}

	tampered := completedPayload(uuid.NewString())
	w := postWebhook(r, tampered, signPayload(payload, testSecret, time.Now()))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, store.calls)
	assert.Equal(t, models.BillingStatusPendingPayment, store.status[eventID])
}

func TestWebhookWithoutSecretConfigured(t *testing.T) {
	store := newFakePaymentStore()
	r := newTestRouter(nil, store, nil)
	payload := completedPayload(uuid.NewString())

	w := postWebhook(r, payload, signPayload(payload, testSecret, time.Now()))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, store.calls)
}

func TestWebhookUnknownTypeAcknowledged(t *testing.T) {
	store := newFakePaymentStore()
	r := newTestRouter(NewStripeVerifier(testSecret), store, nil)
	payload := []byte(`{"id":"evt_2","object":"event","type":"invoice.created","data":{"object":{"id":"in_1","object":"invoice"}}}`)

	w := postWebhook(r, payload, signPayload(payload, testSecret, time.Now()))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, store.calls)
}

func TestWebhookStoreFailureReturns500(t *testing.T) {
	eventID := uuid.New()
	store := newFakePaymentStore(eventID)
	store.err = fmt.Errorf("connection reset")
	r := newTestRouter(NewStripeVerifier(testSecret), store, nil)
	payload := completedPayload(eventID.String())

	w := postWebhook(r, payload, signPayload(payload, testSecret, time.Now()))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}
