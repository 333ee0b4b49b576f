package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bourseville/listings-api/internal/commerce"
	domain "github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/session"
	"github.com/bourseville/listings-api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutListingNotFound indicates the listing does not exist.
	ErrCheckoutListingNotFound = errors.New("checkout: listing not found")
	// ErrCheckoutNotAuthorized indicates the actor does not own the listing.
	// The publication fee is always paid by the owner, admins included.
	ErrCheckoutNotAuthorized = errors.New("checkout: not authorized")
	// ErrCheckoutNotPayable indicates the listing is past the states a
	// payment can still publish.
	ErrCheckoutNotPayable = errors.New("checkout: listing not payable")
	// ErrCheckoutProductNotConfigured indicates no billable is configured
	// for the listing type.
	ErrCheckoutProductNotConfigured = errors.New("checkout: product not configured")
	// ErrCheckoutPaymentFailed indicates the provider session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// checkoutProvider abstracts commerce.Provider for easier testing.
type checkoutProvider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req commerce.CheckoutSessionRequest) (commerce.CheckoutSession, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Listings    repositories.ListingRepository
	Orders      repositories.PaymentOrderRepository
	Provider    checkoutProvider
	Sessions    session.Store
	Products    map[string]string
	Currency    string
	SuccessURL  string
	CancelURL   string
	SlotTTL     time.Duration
	IDGenerator func() string
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	listings   repositories.ListingRepository
	orders     repositories.PaymentOrderRepository
	provider   checkoutProvider
	sessions   session.Store
	products   map[string]string
	currency   string
	successURL string
	cancelURL  string
	slotTTL    time.Duration
	newID      func() string
	now        func() time.Time
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Listings == nil {
		return nil, errors.New("checkout service: listing repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: payment order repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("checkout service: session store is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return orderIDPrefix + ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.SlotTTL
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "eur"
	}

	products := make(map[string]string, len(deps.Products))
	for key, value := range deps.Products {
		products[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return &checkoutService{
		listings:   deps.Listings,
		orders:     deps.Orders,
		provider:   deps.Provider,
		sessions:   deps.Sessions,
		products:   products,
		currency:   currency,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
		slotTTL:    ttl,
		newID:      idGen,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// InitiateCheckout creates the publication-fee order, opens a provider
// checkout session, and records the pending-listing slot consulted by
// the reconciler when a signal arrives without an order back-reference.
func (s *checkoutService) InitiateCheckout(ctx context.Context, cmd InitiateCheckoutCommand) (CheckoutRedirect, error) {
	if s == nil || s.listings == nil || s.orders == nil || s.provider == nil {
		return CheckoutRedirect{}, ErrCheckoutUnavailable
	}

	ownerID := strings.TrimSpace(cmd.Actor.ID)
	listingID := strings.TrimSpace(cmd.ListingID)
	if ownerID == "" || listingID == "" {
		return CheckoutRedirect{}, ErrCheckoutInvalidInput
	}

	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return CheckoutRedirect{}, s.translateError(err)
	}
	// Fees are charged to the owner's own account, never on behalf of
	// someone else. Admin privileges do not extend here.
	if strings.TrimSpace(listing.OwnerID) != ownerID {
		return CheckoutRedirect{}, ErrCheckoutNotAuthorized
	}
	if !listing.Status.Payable() || listing.Paid {
		return CheckoutRedirect{}, ErrCheckoutNotPayable
	}

	priceRef := s.products[string(listing.Type)]
	if priceRef == "" {
		return CheckoutRedirect{}, ErrCheckoutProductNotConfigured
	}

	now := s.now()
	order := domain.PaymentOrder{
		ID:         s.newID(),
		OwnerID:    ownerID,
		ListingID:  listing.ID,
		ProductKey: string(listing.Type),
		Currency:   s.currency,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	order = order.Note(now, fmt.Sprintf("checkout initiated for listing %s", listing.ID))

	order, err = s.orders.Create(ctx, order)
	if err != nil {
		return CheckoutRedirect{}, s.translateError(err)
	}

	checkout, err := s.provider.CreateCheckoutSession(ctx, commerce.CheckoutSessionRequest{
		OrderID:        order.ID,
		ListingID:      listing.ID,
		PriceRef:       priceRef,
		Currency:       s.currency,
		CustomerEmail:  strings.TrimSpace(cmd.CustomerEmail),
		Locale:         strings.TrimSpace(cmd.Locale),
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		IdempotencyKey: order.ID,
	})
	if err != nil {
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"listingId": listing.ID,
			"orderId":   order.ID,
			"provider":  s.provider.Name(),
			"error":     err.Error(),
		})
		s.markOrderFailed(ctx, order, err)
		return CheckoutRedirect{}, ErrCheckoutPaymentFailed
	}

	order.CheckoutSessionID = checkout.ID
	if checkout.Amount > 0 {
		order.Amount = checkout.Amount
	}
	if checkout.Currency != "" {
		order.Currency = checkout.Currency
	}
	order.UpdatedAt = s.now()
	order = order.Note(order.UpdatedAt, fmt.Sprintf("checkout session %s created via %s", checkout.ID, s.provider.Name()))
	if order, err = s.orders.Update(ctx, order); err != nil {
		return CheckoutRedirect{}, s.translateError(err)
	}

	// Category follows the type; re-derive it here so a stale draft
	// cannot carry a mismatched category into checkout.
	category := domain.CategoryForType(listing.Type)
	if listing.Status == domain.ListingStatusDraft || listing.Category != category {
		expectedUpdate := listing.UpdatedAt
		if listing.Status == domain.ListingStatusDraft {
			listing.Status = domain.ListingStatusPending
		}
		listing.Category = category
		listing.UpdatedAt = s.now()
		if _, err := s.listings.Update(ctx, listing, &expectedUpdate); err != nil {
			return CheckoutRedirect{}, s.translateError(err)
		}
	}

	// The slot is a single mutable reference keyed by owner, the same
	// key the reconciler reads it back under: starting a new checkout
	// replaces whatever listing the previous one pointed at.
	if err := s.sessions.Put(ctx, ownerID, listing.ID, s.now(), s.slotTTL); err != nil {
		s.logger(ctx, "checkout.slot_write_failed", map[string]any{
			"listingId": listing.ID,
			"orderId":   order.ID,
			"error":     err.Error(),
		})
	}

	s.logger(ctx, "checkout.initiated", map[string]any{
		"listingId": listing.ID,
		"orderId":   order.ID,
		"sessionId": checkout.ID,
		"provider":  s.provider.Name(),
	})

	return CheckoutRedirect{
		OrderID:     order.ID,
		SessionID:   checkout.ID,
		RedirectURL: checkout.RedirectURL,
		Provider:    checkout.Provider,
		Amount:      order.Amount,
		Currency:    order.Currency,
		ExpiresAt:   checkout.ExpiresAt,
	}, nil
}

func (s *checkoutService) markOrderFailed(ctx context.Context, order domain.PaymentOrder, cause error) {
	now := s.now()
	order.Status = domain.OrderStatusFailed
	order.UpdatedAt = now
	order = order.Note(now, fmt.Sprintf("checkout session creation failed: %v", cause))
	if _, err := s.orders.Update(ctx, order); err != nil {
		s.logger(ctx, "checkout.order_fail_mark_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) translateError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCheckoutListingNotFound
		case repoErr.IsConflict():
			return ErrCheckoutUnavailable
		default:
			return ErrCheckoutUnavailable
		}
	}
	return ErrCheckoutUnavailable
}
