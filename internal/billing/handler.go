package billing

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/pkg/response"
)

// maxWebhookBody caps the raw payload read before verification.
const maxWebhookBody = 1 << 16

// SignatureHeader carries the provider signature.
const SignatureHeader = "Stripe-Signature"

// WebhookHandler handles POST /billing/webhook.
type WebhookHandler struct {
	verifier   WebhookVerifier
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewWebhookHandler creates a webhook handler. A nil verifier means the signing secret is not configured.
func NewWebhookHandler(verifier WebhookVerifier, reconciler *Reconciler, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{verifier: verifier, reconciler: reconciler, logger: logger}
}

// Webhook verifies the raw body before any processing; an unverified payload never reaches the store.
func (h *WebhookHandler) Webhook(c *gin.Context) {
	if h.verifier == nil {
		h.logger.Error("billing webhook called without signing secret configured")
		response.Internal(c, "webhook secret not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "failed to read request body")
		return
	}
	ev, err := h.verifier.Verify(payload, c.GetHeader(SignatureHeader))
	if err != nil {
		h.logger.Warn("billing webhook rejected", zap.Error(err))
		response.BadRequest(c, "invalid signature")
		return
	}
	if err := h.reconciler.Apply(c.Request.Context(), ev); err != nil {
		h.logger.Error("billing webhook processing failed", zap.Error(err), zap.String("stripe_event_id", ev.ID))
		response.Internal(c, "failed to process webhook")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
