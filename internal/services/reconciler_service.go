package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/events"
	"github.com/bourseville/listings-api/internal/platform/session"
	"github.com/bourseville/listings-api/internal/repositories"
)

var (
	// ErrReconcileInvalidInput indicates the delivery carried neither an
	// order nor a session reference, or no source channel.
	ErrReconcileInvalidInput = errors.New("reconcile: invalid input")
	// ErrReconcileUnavailable indicates reconciliation dependencies are
	// currently unavailable.
	ErrReconcileUnavailable = errors.New("reconcile: unavailable")
)

// LifecycleEventPublisher accepts listing lifecycle notifications for downstream processing.
type LifecycleEventPublisher interface {
	PublishLifecycleEvent(ctx context.Context, message events.LifecycleMessage) (string, error)
}

// ReconcilerServiceDeps wires the dependencies required by the reconciler.
type ReconcilerServiceDeps struct {
	Listings repositories.ListingRepository
	Orders   repositories.PaymentOrderRepository
	Sessions session.Store
	Events   LifecycleEventPublisher
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type reconcilerService struct {
	listings repositories.ListingRepository
	orders   repositories.PaymentOrderRepository
	sessions session.Store
	events   LifecycleEventPublisher
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewReconcilerService constructs a ReconcilerService validating required dependencies.
func NewReconcilerService(deps ReconcilerServiceDeps) (ReconcilerService, error) {
	if deps.Listings == nil {
		return nil, errors.New("reconciler service: listing repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("reconciler service: payment order repository is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("reconciler service: session store is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reconcilerService{
		listings: deps.Listings,
		orders:   deps.Orders,
		sessions: deps.Sessions,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Reconcile applies one payment-confirmation delivery. The same order is
// confirmed through several channels in no guaranteed sequence, so the
// whole method is a no-op past the first delivery that publishes: at
// most one delivery per order reports OutcomePublished, every later one
// reports OutcomeAlreadyPublished. Each delivery leaves an audit note on
// the order either way.
func (s *reconcilerService) Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error) {
	if s == nil || s.listings == nil || s.orders == nil {
		return ReconcileResult{}, ErrReconcileUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	sessionID := strings.TrimSpace(cmd.SessionID)
	source := cmd.Source
	if source == "" || (orderID == "" && sessionID == "") {
		return ReconcileResult{}, ErrReconcileInvalidInput
	}

	order, found, err := s.resolveOrder(ctx, orderID, sessionID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if !found {
		s.logger(ctx, "reconcile.order_missing", map[string]any{
			"orderId":   orderID,
			"sessionId": sessionID,
			"source":    string(source),
		})
		return ReconcileResult{Outcome: domain.ReconcileOutcomeOrderMissing, OrderID: orderID}, nil
	}

	now := s.now()
	listing, resolved, err := s.resolveListing(ctx, order, now)
	if err != nil {
		return ReconcileResult{}, err
	}
	if !resolved {
		s.recordDelivery(ctx, order, source, now, "no listing resolved from order or session slot")
		return ReconcileResult{Outcome: domain.ReconcileOutcomeListingMissing, OrderID: order.ID}, nil
	}

	result := ReconcileResult{OrderID: order.ID, ListingID: listing.ID}
	if !listing.Status.Payable() {
		result.Outcome = domain.ReconcileOutcomeAlreadyPublished
		s.recordDelivery(ctx, order, source, now,
			fmt.Sprintf("listing %s already %s, duplicate signal ignored", listing.ID, listing.Status))
		return result, nil
	}

	published, err := s.publish(ctx, listing, order, now)
	if err != nil {
		s.recordFailure(ctx, order, source, now,
			fmt.Sprintf("publish of listing %s failed, status left unchanged", listing.ID))
		return ReconcileResult{}, err
	}
	if published {
		result.Outcome = domain.ReconcileOutcomePublished
		s.recordDelivery(ctx, order, source, now, fmt.Sprintf("listing %s published", listing.ID))
		s.clearSlot(ctx, order.OwnerID)
		s.emit(ctx, events.EventListingPublished, listing, order.ID, now)
	} else {
		result.Outcome = domain.ReconcileOutcomeAlreadyPublished
		s.recordDelivery(ctx, order, source, now,
			fmt.Sprintf("listing %s publish raced, duplicate signal ignored", listing.ID))
	}
	return result, nil
}

func (s *reconcilerService) resolveOrder(ctx context.Context, orderID, sessionID string) (domain.PaymentOrder, bool, error) {
	var (
		order domain.PaymentOrder
		err   error
	)
	if orderID != "" {
		order, err = s.orders.Get(ctx, orderID)
	} else {
		order, err = s.orders.GetBySession(ctx, sessionID)
	}
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.PaymentOrder{}, false, nil
		}
		return domain.PaymentOrder{}, false, ErrReconcileUnavailable
	}
	return order, true, nil
}

// resolveListing consults the order's durable back-reference first and
// only then the per-user pending-listing slot written at checkout.
func (s *reconcilerService) resolveListing(ctx context.Context, order domain.PaymentOrder, now time.Time) (domain.Listing, bool, error) {
	if id := strings.TrimSpace(order.ListingID); id != "" {
		listing, found, err := s.getListing(ctx, id)
		if err != nil || found {
			return listing, found, err
		}
	}

	slotID, ok, err := s.sessions.Get(ctx, strings.TrimSpace(order.OwnerID), now)
	if err != nil {
		s.logger(ctx, "reconcile.slot_read_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return domain.Listing{}, false, nil
	}
	if !ok || strings.TrimSpace(slotID) == "" {
		return domain.Listing{}, false, nil
	}
	return s.getListing(ctx, strings.TrimSpace(slotID))
}

func (s *reconcilerService) getListing(ctx context.Context, listingID string) (domain.Listing, bool, error) {
	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Listing{}, false, nil
		}
		return domain.Listing{}, false, ErrReconcileUnavailable
	}
	return listing, true, nil
}

// publish flips the listing to published under a last-update-time
// precondition so two concurrent deliveries cannot both win. The loser
// observes the conflict, re-reads, and treats the signal as a duplicate.
func (s *reconcilerService) publish(ctx context.Context, listing domain.Listing, order domain.PaymentOrder, now time.Time) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		lastUpdate, err := s.listings.LastUpdateTime(ctx, listing.ID)
		if err != nil {
			return false, ErrReconcileUnavailable
		}

		publishedAt := now
		updated := listing
		updated.Status = domain.ListingStatusPublished
		updated.Paid = true
		updated.LastPaidOrder = order.ID
		updated.PublishedAt = &publishedAt
		updated.Category = domain.CategoryForType(listing.Type)
		updated.UpdatedAt = now

		_, err = s.listings.Update(ctx, updated, &lastUpdate)
		if err == nil {
			return true, nil
		}

		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			return false, ErrReconcileUnavailable
		}

		fresh, found, err := s.getListing(ctx, listing.ID)
		if err != nil {
			return false, err
		}
		if !found || !fresh.Status.Payable() {
			return false, nil
		}
		listing = fresh
	}
	return false, nil
}

// recordDelivery marks the order paid (monotonically, a paid order never
// regresses) and appends the per-delivery audit note.
func (s *reconcilerService) recordDelivery(ctx context.Context, order domain.PaymentOrder, source SignalSource, now time.Time, detail string) {
	order.Status = domain.OrderStatusPaid
	order.UpdatedAt = now
	order = order.Note(now, fmt.Sprintf("payment signal via %s: %s", source, detail))

	if _, err := s.orders.Update(ctx, order); err != nil {
		s.logger(ctx, "reconcile.order_note_failed", map[string]any{
			"orderId": order.ID,
			"source":  string(source),
			"error":   err.Error(),
		})
	}
}

// recordFailure appends an audit note without touching order status,
// for deliveries that could not be completed.
func (s *reconcilerService) recordFailure(ctx context.Context, order domain.PaymentOrder, source SignalSource, now time.Time, detail string) {
	order.UpdatedAt = now
	order = order.Note(now, fmt.Sprintf("payment signal via %s: %s", source, detail))

	if _, err := s.orders.Update(ctx, order); err != nil {
		s.logger(ctx, "reconcile.order_note_failed", map[string]any{
			"orderId": order.ID,
			"source":  string(source),
			"error":   err.Error(),
		})
	}
}

func (s *reconcilerService) clearSlot(ctx context.Context, ownerID string) {
	ownerID = strings.TrimSpace(ownerID)
	if s.sessions == nil || ownerID == "" {
		return
	}
	if err := s.sessions.Clear(ctx, ownerID); err != nil {
		s.logger(ctx, "reconcile.slot_clear_failed", map[string]any{
			"ownerId": ownerID,
			"error":   err.Error(),
		})
	}
}

func (s *reconcilerService) emit(ctx context.Context, event string, listing domain.Listing, orderID string, now time.Time) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishLifecycleEvent(ctx, events.LifecycleMessage{
		Event:      event,
		ListingID:  listing.ID,
		OwnerID:    listing.OwnerID,
		Type:       string(listing.Type),
		OrderID:    orderID,
		OccurredAt: now,
	}); err != nil {
		s.logger(ctx, "reconcile.event_publish_failed", map[string]any{
			"event":     event,
			"listingId": listing.ID,
			"error":     err.Error(),
		})
	}
}
