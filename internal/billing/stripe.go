package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeOptions configures checkout sessions.
type StripeOptions struct {
	SecretKey   string
	Currency    string
	Locale      string
	ProductName string
	SuccessURL  string
	CancelURL   string
}

// StripeProvider implements CheckoutProvider with Stripe Checkout.
type StripeProvider struct {
	api  *client.API
	opts StripeOptions
}

// NewStripeProvider creates a Stripe-backed checkout provider.
func NewStripeProvider(opts StripeOptions) *StripeProvider {
	api := &client.API{}
	api.Init(opts.SecretKey, nil)
	return &StripeProvider{api: api, opts: opts}
}

// CreateCheckoutSession opens a one-item payment session priced from the request tier.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(p.opts.SuccessURL),
		CancelURL:          stripe.String(p.opts.CancelURL),
		Currency:           stripe.String(p.opts.Currency),
		Locale:             stripe.String(p.opts.Locale),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		ClientReferenceID:  stripe.String(req.EventID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.opts.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(p.opts.ProductName),
						Description: stripe.String(fmt.Sprintf("%s (até %d convidados)", req.Tier.Label, req.Guests)),
					},
					UnitAmount: stripe.Int64(req.Tier.UnitAmount),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataEventID, req.EventID.String())
	params.AddMetadata(MetadataOrgID, req.OrgID.String())
	params.AddMetadata(MetadataGuests, strconv.Itoa(req.Guests))
	params.AddMetadata(MetadataTier, req.Tier.Key)

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return toCheckoutSession(s), nil
}

// GetCheckoutSession retrieves the live session state.
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get checkout session %s: %w", id, err)
	}
	return toCheckoutSession(s), nil
}

func toCheckoutSession(s *stripe.CheckoutSession) *CheckoutSession {
	return &CheckoutSession{ID: s.ID, URL: s.URL, Status: SessionStatus(s.Status)}
}

// StripeVerifier checks the Stripe-Signature header (HMAC-SHA256, default tolerance window).
type StripeVerifier struct {
	secret string
}

// NewStripeVerifier creates a verifier for the endpoint's signing secret.
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

type sessionObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

// Verify authenticates payload and decodes the checkout session it carries, if any.
func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := &WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil && len(ev.Data.Raw) > 0 {
		var obj sessionObject
		if err := json.Unmarshal(ev.Data.Raw, &obj); err == nil {
			out.SessionID = obj.ID
			out.Metadata = obj.Metadata
		}
	}
	return out, nil
}
