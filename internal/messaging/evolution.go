package messaging

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Instance connection states reported by Evolution.
const (
	InstanceStatusPending   = "pending"
	InstanceStatusConnected = "connected"
)

// EvolutionOptions configures the Evolution API client. An empty BaseURL or Token selects
// mock mode, where no request leaves the process.
type EvolutionOptions struct {
	BaseURL       string
	Token         string
	WebhookSecret string
	WebhookBase   string
	Timeout       time.Duration
}

// SendInput is one outbound WhatsApp text message.
type SendInput struct {
	InstanceID string
	To         string
	Message    string
}

// SendResult is the provider's acknowledgement.
type SendResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// InstanceResult describes a created WhatsApp instance.
type InstanceResult struct {
	InstanceID string
	Status     string
	QRCode     *string
	WebhookURL string
}

// ConnectionState is an instance's live connection status.
type ConnectionState struct {
	Status string
	QRCode *string
}

// EvolutionClient talks to the Evolution WhatsApp API.
type EvolutionClient struct {
	baseURL       string
	token         string
	webhookSecret string
	webhookBase   string
	http          *http.Client
	logger        *zap.Logger
	mock          bool
}

// NewEvolutionClient creates an Evolution API client.
func NewEvolutionClient(opts EvolutionOptions, logger *zap.Logger) *EvolutionClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	base := strings.TrimRight(strings.TrimSuffix(strings.TrimRight(opts.BaseURL, "/"), "/dashboard"), "/")
	c := &EvolutionClient{
		baseURL:       base,
		token:         opts.Token,
		webhookSecret: opts.WebhookSecret,
		webhookBase:   opts.WebhookBase,
		http:          &http.Client{Timeout: opts.Timeout},
		logger:        logger,
		mock:          base == "" || opts.Token == "",
	}
	if c.mock {
		logger.Warn("evolution API running in mock mode, set EVOLUTION_BASE_URL and EVOLUTION_TOKEN to send messages")
	}
	return c
}

// Mock reports whether the client is in mock mode.
func (c *EvolutionClient) Mock() bool { return c.mock }

// WebhookURL is the callback Evolution uses for an organization's instance.
func (c *EvolutionClient) WebhookURL(orgID uuid.UUID) string {
	if c.webhookBase == "" {
		return ""
	}
	q := url.Values{}
	q.Set("secret", c.webhookSecret)
	q.Set("org", orgID.String())
	sep := "?"
	if strings.Contains(c.webhookBase, "?") {
		sep = "&"
	}
	return c.webhookBase + sep + q.Encode()
}

// InstanceName is the Evolution instance name for an organization.
func InstanceName(orgID uuid.UUID) string {
	return "org-" + orgID.String()
}

// CreateInstance creates the organization's instance and points its webhook at this service.
func (c *EvolutionClient) CreateInstance(ctx context.Context, orgID uuid.UUID) (*InstanceResult, error) {
	webhookURL := c.WebhookURL(orgID)
	if c.mock {
		id := "mock-" + uuid.NewString()
		c.logger.Info("mock: created evolution instance", zap.String("instance_id", id))
		return &InstanceResult{InstanceID: id, Status: InstanceStatusPending, WebhookURL: webhookURL}, nil
	}

	var out struct {
		Instance struct {
			InstanceName     string `json:"instanceName"`
			ConnectionStatus string `json:"connectionStatus"`
		} `json:"instance"`
		QRCode *struct {
			Base64 string `json:"base64"`
		} `json:"qrcode"`
	}
	body := map[string]interface{}{
		"instanceName": InstanceName(orgID),
		"token":        c.token,
		"qrcode":       true,
	}
	if err := c.do(ctx, http.MethodPost, "/manager/instance", body, &out); err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	res := &InstanceResult{
		InstanceID: out.Instance.InstanceName,
		Status:     out.Instance.ConnectionStatus,
		WebhookURL: webhookURL,
	}
	if res.InstanceID == "" {
		res.InstanceID = InstanceName(orgID)
	}
	if res.Status == "" {
		res.Status = InstanceStatusPending
	}
	if out.QRCode != nil && out.QRCode.Base64 != "" {
		qr := out.QRCode.Base64
		res.QRCode = &qr
	}
	if webhookURL != "" {
		if err := c.SetWebhook(ctx, res.InstanceID, webhookURL); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// SetWebhook subscribes the instance's message and connection events to url.
func (c *EvolutionClient) SetWebhook(ctx context.Context, instanceID, webhookURL string) error {
	if c.mock {
		c.logger.Info("mock: set evolution webhook", zap.String("instance_id", instanceID))
		return nil
	}
	body := map[string]interface{}{
		"url":     webhookURL,
		"enabled": true,
		"events":  []string{"messages", "connection.update"},
	}
	if err := c.do(ctx, http.MethodPost, "/webhook/"+url.PathEscape(instanceID), body, nil); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// SendMessage sends a text message through the instance.
func (c *EvolutionClient) SendMessage(ctx context.Context, in SendInput) (*SendResult, error) {
	if c.mock {
		c.logger.Info("mock: sending whatsapp message", zap.String("instance_id", in.InstanceID), zap.String("to", in.To))
		return &SendResult{MessageID: "mock-msg-" + uuid.NewString(), Status: "sent"}, nil
	}
	var out struct {
		MessageID string `json:"messageId"`
		Status    string `json:"status"`
		Key       struct {
			ID string `json:"id"`
		} `json:"key"`
	}
	body := map[string]string{"number": in.To, "text": in.Message}
	if err := c.do(ctx, http.MethodPost, "/message/sendText/"+url.PathEscape(in.InstanceID), body, &out); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	res := &SendResult{MessageID: out.MessageID, Status: out.Status}
	if res.MessageID == "" {
		res.MessageID = out.Key.ID
	}
	if res.Status == "" {
		res.Status = "sent"
	}
	return res, nil
}

// ConnectionStatus fetches the instance's connection state.
func (c *EvolutionClient) ConnectionStatus(ctx context.Context, instanceID string) (*ConnectionState, error) {
	if c.mock {
		return &ConnectionState{Status: InstanceStatusConnected}, nil
	}
	var out struct {
		ConnectionStatus string `json:"connectionStatus"`
		QRCode           *struct {
			Base64 string `json:"base64"`
		} `json:"qrcode"`
	}
	if err := c.do(ctx, http.MethodGet, "/instance/"+url.PathEscape(instanceID), nil, &out); err != nil {
		return nil, fmt.Errorf("connection status: %w", err)
	}
	st := &ConnectionState{Status: out.ConnectionStatus}
	if st.Status == "" {
		st.Status = "disconnected"
	}
	if out.QRCode != nil && out.QRCode.Base64 != "" {
		qr := out.QRCode.Base64
		st.QRCode = &qr
	}
	return st, nil
}

// ValidateWebhookSecret compares the secret from a webhook callback in constant time.
// An unconfigured secret rejects every callback.
func (c *EvolutionClient) ValidateWebhookSecret(provided string) bool {
	if c.webhookSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(c.webhookSecret)) == 1
}

func (c *EvolutionClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("apikey", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("evolution API %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
