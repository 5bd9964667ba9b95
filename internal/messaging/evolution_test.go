package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	apikey string
	body   map[string]interface{}
}

func newEvolutionServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, apikey: r.Header.Get("apikey")}
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		calls = append(calls, rec)
		handle(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestEvolutionMockMode(t *testing.T) {
	c := NewEvolutionClient(EvolutionOptions{}, nil)
	require.True(t, c.Mock())

	res, err := c.SendMessage(context.Background(), SendInput{InstanceID: "i", To: "+5511999990000", Message: "oi"})
	require.NoError(t, err)
	assert.Equal(t, "sent", res.Status)
	assert.NotEmpty(t, res.MessageID)

	inst, err := c.CreateInstance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, InstanceStatusPending, inst.Status)
}

func TestEvolutionSendMessage(t *testing.T) {
	srv, calls := newEvolutionServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"key":{"id":"ABC123"}}`))
	})
	c := NewEvolutionClient(EvolutionOptions{BaseURL: srv.URL + "/dashboard/", Token: "tok"}, nil)
	require.False(t, c.Mock())

	res, err := c.SendMessage(context.Background(), SendInput{InstanceID: "org-1", To: "+5511999990000", Message: "Olá"})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", res.MessageID)
	assert.Equal(t, "sent", res.Status)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/message/sendText/org-1", call.path)
	assert.Equal(t, "tok", call.apikey)
	assert.Equal(t, "+5511999990000", call.body["number"])
	assert.Equal(t, "Olá", call.body["text"])
}

func TestEvolutionErrorStatus(t *testing.T) {
	srv, _ := newEvolutionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"instance not connected"}`))
	})
	c := NewEvolutionClient(EvolutionOptions{BaseURL: srv.URL, Token: "tok"}, nil)

	_, err := c.SendMessage(context.Background(), SendInput{InstanceID: "org-1", To: "+1", Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "instance not connected")
}

func TestEvolutionCreateInstanceSetsWebhook(t *testing.T) {
	orgID := uuid.New()
	srv, calls := newEvolutionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/manager/instance" {
			_, _ = w.Write([]byte(`{"instance":{"instanceName":"org-x","connectionStatus":"connecting"},"qrcode":{"base64":"data:image/png;base64,AAA"}}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	c := NewEvolutionClient(EvolutionOptions{
		BaseURL:       srv.URL,
		Token:         "tok",
		WebhookSecret: "s3cret",
		WebhookBase:   "https://api.example.com/webhooks/evolution",
	}, nil)

	res, err := c.CreateInstance(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, "org-x", res.InstanceID)
	assert.Equal(t, "connecting", res.Status)
	require.NotNil(t, res.QRCode)
	assert.Contains(t, res.WebhookURL, "org="+orgID.String())
	assert.Contains(t, res.WebhookURL, "secret=s3cret")

	require.Len(t, *calls, 2)
	assert.Equal(t, InstanceName(orgID), (*calls)[0].body["instanceName"])
	assert.Equal(t, "/webhook/org-x", (*calls)[1].path)
	assert.Equal(t, res.WebhookURL, (*calls)[1].body["url"])
}

func TestEvolutionConnectionStatus(t *testing.T) {
	srv, _ := newEvolutionServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"connectionStatus":"open"}`))
	})
	c := NewEvolutionClient(EvolutionOptions{BaseURL: srv.URL, Token: "tok"}, nil)

	st, err := c.ConnectionStatus(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "open", st.Status)
	assert.Nil(t, st.QRCode)
}

func TestValidateWebhookSecret(t *testing.T) {
	c := NewEvolutionClient(EvolutionOptions{WebhookSecret: "s3cret"}, nil)
	assert.True(t, c.ValidateWebhookSecret("s3cret"))
	assert.False(t, c.ValidateWebhookSecret("nope"))

	unset := NewEvolutionClient(EvolutionOptions{}, nil)
	assert.False(t, unset.ValidateWebhookSecret(""))
}
