// Package commerce bridges the listing lifecycle to the payment
// provider: it creates checkout sessions for publication fees and
// normalises provider webhook deliveries into confirmation signals.
package commerce

import (
	"context"
	"time"
)

// CheckoutSessionRequest describes a publication-fee checkout for one
// listing. PriceRef is the provider-side billable configured per
// listing type; Metadata carries the durable listing back-reference.
type CheckoutSessionRequest struct {
	OrderID        string
	ListingID      string
	PriceRef       string
	Currency       string
	CustomerEmail  string
	Locale         string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

// CheckoutSession is the provider-side session the payer is redirected to.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	Amount      int64
	Currency    string
	ExpiresAt   time.Time
}

// Signal is one normalised payment-confirmation delivery. OrderID and
// ListingID come from the session metadata; either may be empty when the
// provider delivery predates the back-reference.
type Signal struct {
	EventID   string
	OrderID   string
	ListingID string
	SessionID string
	Paid      bool
}

// Provider is the payment provider surface the lifecycle needs.
type Provider interface {
	// Name identifies the provider in logs and audit notes.
	Name() string
	// CreateCheckoutSession creates a session for the publication fee.
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// ParseSignal verifies a webhook delivery and extracts the signal.
	// Deliveries for event types the lifecycle does not consume return
	// ok=false with no error.
	ParseSignal(payload []byte, signature string) (signal Signal, ok bool, err error)
}
