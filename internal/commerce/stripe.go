package commerce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Metadata keys attached to every checkout session so deliveries can be
// traced back to the order and listing they pay for.
const (
	MetadataOrderID   = "order_id"
	MetadataListingID = "listing_id"
)

// StripeLogger defines the logging contract for Stripe operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time

	// Sessions overrides the checkout session API, for tests.
	Sessions stripeSessionAPI
	// VerifySignature overrides webhook signature verification, for tests.
	VerifySignature func(payload []byte, signature string) (stripe.Event, error)
}

// StripeProvider implements Provider using Stripe Checkout and webhooks.
type StripeProvider struct {
	sessions stripeSessionAPI
	verify   func(payload []byte, signature string) (stripe.Event, error)
	clock    func() time.Time
	logger   StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sc := client.New(apiKey, cfg.Backends)
		sessions = sc.CheckoutSessions
	}

	verify := cfg.VerifySignature
	if verify == nil {
		secret := strings.TrimSpace(cfg.WebhookSecret)
		if secret == "" {
			return nil, errors.New("stripe: webhook secret is required")
		}
		verify = func(payload []byte, signature string) (stripe.Event, error) {
			return webhook.ConstructEvent(payload, signature, secret)
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		sessions: sessions,
		verify:   verify,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Name identifies the provider.
func (p *StripeProvider) Name() string { return "stripe" }

// CreateCheckoutSession creates a Stripe Checkout session billing the
// configured publication price exactly once.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	priceRef := strings.TrimSpace(req.PriceRef)
	if priceRef == "" {
		return CheckoutSession{}, errors.New("stripe: price ref is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceRef),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.Locale != "" {
		params.Locale = stripe.String(strings.ReplaceAll(strings.ToLower(req.Locale), "_", "-"))
	}

	metadata := map[string]string{
		MetadataOrderID:   req.OrderID,
		MetadataListingID: req.ListingID,
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	params.Metadata = metadata
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: metadata,
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "commerce.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"orderId":   req.OrderID,
		"listingId": req.ListingID,
	})

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return CheckoutSession{
		ID:          session.ID,
		Provider:    p.Name(),
		RedirectURL: session.URL,
		Amount:      session.AmountTotal,
		Currency:    strings.ToLower(string(session.Currency)),
		ExpiresAt:   expiresAt,
	}, nil
}

// ParseSignal verifies the webhook signature and extracts the payment
// confirmation. Only checkout.session.completed and
// checkout.session.async_payment_succeeded carry a confirmation; other
// event types return ok=false.
func (p *StripeProvider) ParseSignal(payload []byte, signature string) (Signal, bool, error) {
	if p == nil {
		return Signal{}, false, errors.New("stripe: provider is nil")
	}

	event, err := p.verify(payload, signature)
	if err != nil {
		return Signal{}, false, fmt.Errorf("stripe: verify webhook: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		return Signal{EventID: event.ID}, false, nil
	}

	var object map[string]any
	if event.Data != nil {
		object = event.Data.Object
	}
	signal := Signal{
		EventID: event.ID,
		Paid:    true,
	}
	if id, ok := object["id"].(string); ok {
		signal.SessionID = id
	}
	if status, ok := object["payment_status"].(string); ok {
		signal.Paid = status == "paid"
	}
	if metadata, ok := object["metadata"].(map[string]any); ok {
		if orderID, ok := metadata[MetadataOrderID].(string); ok {
			signal.OrderID = strings.TrimSpace(orderID)
		}
		if listingID, ok := metadata[MetadataListingID].(string); ok {
			signal.ListingID = strings.TrimSpace(listingID)
		}
	}
	return signal, true, nil
}

var _ Provider = (*StripeProvider)(nil)
