package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/events"
)

// reconcilerFixture keeps one listing and one order in memory so a test
// can fire several signal deliveries against shared state.
type reconcilerFixture struct {
	listing domain.Listing
	order   domain.PaymentOrder
	slots   *memorySlotStore
	events  *stubEventPublisher
	now     time.Time
	svc     ReconcilerService
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	f := &reconcilerFixture{
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		slots:  newMemorySlotStore(),
		events: &stubEventPublisher{},
	}
	f.listing = domain.Listing{
		ID:        "lst_1",
		OwnerID:   "user-1",
		Type:      domain.ListingTypeShareIssue,
		Status:    domain.ListingStatusPending,
		UpdatedAt: f.now.Add(-time.Hour),
	}
	f.order = domain.PaymentOrder{
		ID:                "ord_1",
		OwnerID:           "user-1",
		ListingID:         "lst_1",
		Status:            domain.OrderStatusPending,
		CheckoutSessionID: "cs_1",
	}

	listings := &stubListingRepository{
		getFn: func(_ context.Context, id string) (domain.Listing, error) {
			if id != f.listing.ID || f.listing.Deleted() {
				return domain.Listing{}, &repoError{notFound: true}
			}
			return f.listing, nil
		},
		lastUpdateFn: func(_ context.Context, id string) (time.Time, error) {
			return f.listing.UpdatedAt, nil
		},
		updateFn: func(_ context.Context, listing domain.Listing, expectedUpdate *time.Time) (domain.Listing, error) {
			if expectedUpdate != nil && !expectedUpdate.Equal(f.listing.UpdatedAt) {
				return domain.Listing{}, &repoError{conflict: true}
			}
			f.listing = listing
			return listing, nil
		},
	}
	orders := &stubOrderRepository{
		getFn: func(_ context.Context, id string) (domain.PaymentOrder, error) {
			if id != f.order.ID {
				return domain.PaymentOrder{}, &repoError{notFound: true}
			}
			return f.order, nil
		},
		getBySessionFn: func(_ context.Context, sessionID string) (domain.PaymentOrder, error) {
			if sessionID != f.order.CheckoutSessionID {
				return domain.PaymentOrder{}, &repoError{notFound: true}
			}
			return f.order, nil
		},
		updateFn: func(_ context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error) {
			f.order = order
			return order, nil
		},
	}

	svc, err := NewReconcilerService(ReconcilerServiceDeps{
		Listings: listings,
		Orders:   orders,
		Sessions: f.slots,
		Events:   f.events,
		Clock:    func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("NewReconcilerService: %v", err)
	}
	f.svc = svc
	return f
}

func TestReconcileFirstSignalPublishes(t *testing.T) {
	f := newReconcilerFixture(t)
	f.slots.values["user-1"] = "lst_1"

	result, err := f.svc.Reconcile(context.Background(), ReconcileCommand{
		OrderID: "ord_1",
		Source:  domain.SignalSourceWebhookPaid,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if result.Outcome != domain.ReconcileOutcomePublished {
		t.Fatalf("expected published, got %s", result.Outcome)
	}
	if f.listing.Status != domain.ListingStatusPublished {
		t.Fatalf("expected listing published, got %s", f.listing.Status)
	}
	if !f.listing.Paid || f.listing.LastPaidOrder != "ord_1" {
		t.Fatalf("expected paid flag and order reference, got %+v", f.listing)
	}
	if f.listing.PublishedAt == nil || !f.listing.PublishedAt.Equal(f.now) {
		t.Fatalf("expected publishedAt set to now")
	}
	if f.order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected order paid, got %s", f.order.Status)
	}
	if _, ok := f.slots.values["user-1"]; ok {
		t.Fatalf("expected slot cleared after publish")
	}
	if len(f.events.messages) != 1 || f.events.messages[0].Event != events.EventListingPublished {
		t.Fatalf("expected published event, got %+v", f.events.messages)
	}
}

func TestReconcileRedundantSignalsPublishExactlyOnce(t *testing.T) {
	f := newReconcilerFixture(t)

	sources := []SignalSource{
		domain.SignalSourceWebhookProcessing,
		domain.SignalSourceThankYou,
		domain.SignalSourceWebhookPaid,
		domain.SignalSourceWebhookCompleted,
		domain.SignalSourceInternal,
	}

	publishedCount := 0
	for _, source := range sources {
		result, err := f.svc.Reconcile(context.Background(), ReconcileCommand{
			OrderID: "ord_1",
			Source:  source,
		})
		if err != nil {
			t.Fatalf("Reconcile via %s: %v", source, err)
		}
		if result.Outcome == domain.ReconcileOutcomePublished {
			publishedCount++
		} else if result.Outcome != domain.ReconcileOutcomeAlreadyPublished {
			t.Fatalf("unexpected outcome %s via %s", result.Outcome, source)
		}
	}

	if publishedCount != 1 {
		t.Fatalf("expected exactly one publishing delivery, got %d", publishedCount)
	}
	if f.listing.Status != domain.ListingStatusPublished {
		t.Fatalf("expected listing published, got %s", f.listing.Status)
	}
	if len(f.events.messages) != 1 {
		t.Fatalf("expected one lifecycle event, got %d", len(f.events.messages))
	}
	// Every delivery leaves its own audit note regardless of outcome.
	if len(f.order.Notes) != len(sources) {
		t.Fatalf("expected %d audit notes, got %d", len(sources), len(f.order.Notes))
	}
	for i, source := range sources {
		if !strings.Contains(f.order.Notes[i].Message, string(source)) {
			t.Fatalf("expected note %d to mention %s, got %q", i, source, f.order.Notes[i].Message)
		}
	}
}

func TestReconcileResolvesOrderBySession(t *testing.T) {
	f := newReconcilerFixture(t)

	result, err := f.svc.Reconcile(context.Background(), ReconcileCommand{
		SessionID: "cs_1",
		Source:    domain.SignalSourceWebhookPaid,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Outcome != domain.ReconcileOutcomePublished || result.OrderID != "ord_1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestReconcileFallsBackToSessionSlot(t *testing.T) {
	f := newReconcilerFixture(t)
	// Order predates the back-reference.
	f.order.ListingID = ""
	f.slots.values["user-1"] = "lst_1"

	result, err := f.svc.Reconcile(context.Background(), ReconcileCommand{
		OrderID: "ord_1",
		Source:  domain.SignalSourceThankYou,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Outcome != domain.ReconcileOutcomePublished {
		t.Fatalf("expected published via slot fallback, got %s", result.Outcome)
	}
	if result.ListingID != "lst_1" {
		t.Fatalf("expected listing resolved from slot, got %s", result.ListingID)
	}
}

func TestReconcileListingMissing(t *testing.T) {
	f := newReconcilerFixture(t)
	f.order.ListingID = "lst_gone"

	result, err := f.svc.Reconcile(context.Background(), ReconcileCommand{
		OrderID: "ord_1",
		Source:  domain.SignalSourceWebhookPaid,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Outcome != domain.ReconcileOutcomeListingMissing {
		t.Fatalf("expected listing missing, got %s", result.Outcome)
	}
	// The payment still happened, so the order is marked paid and noted.
	if f.order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected order paid, got %s", f.order.Status)
	}
	if len(f.order.Notes) != 1 {
		t.Fatalf("expected audit note, got %d", len(f.order.Notes))
	}
}

func TestReconcileOrderMissing(t *testing.T) {
	f := newReconcilerFixture(t)

	result, err := f.svc.Reconcile(context.Background(), ReconcileCommand{
		OrderID: "ord_unknown",
		Source:  domain.SignalSourceInternal,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Outcome != domain.ReconcileOutcomeOrderMissing {
		t.Fatalf("expected order missing, got %s", result.Outcome)
	}
}

func TestReconcileIgnoresSignalForHiddenListing(t *testing.T) {
	f := newReconcilerFixture(t)
	f.listing.Status = domain.ListingStatusHidden
	f.listing.Paid = true

	result, err := f.svc.Reconcile(context.Background(), ReconcileCommand{
		OrderID: "ord_1",
		Source:  domain.SignalSourceWebhookCompleted,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Outcome != domain.ReconcileOutcomeAlreadyPublished {
		t.Fatalf("expected duplicate outcome, got %s", result.Outcome)
	}
	if f.listing.Status != domain.ListingStatusHidden {
		t.Fatalf("expected hidden listing untouched, got %s", f.listing.Status)
	}
}

func TestReconcileStoreFailureNotesOrderWithoutPaidMark(t *testing.T) {
	var noted domain.PaymentOrder
	listings := &stubListingRepository{
		getFn: func(_ context.Context, id string) (domain.Listing, error) {
			return domain.Listing{
				ID:      id,
				OwnerID: "user-1",
				Type:    domain.ListingTypeShareIssue,
				Status:  domain.ListingStatusPending,
			}, nil
		},
		lastUpdateFn: func(context.Context, string) (time.Time, error) {
			return time.Time{}, nil
		},
		updateFn: func(context.Context, domain.Listing, *time.Time) (domain.Listing, error) {
			return domain.Listing{}, &repoError{}
		},
	}
	orders := &stubOrderRepository{
		getFn: func(_ context.Context, id string) (domain.PaymentOrder, error) {
			return domain.PaymentOrder{
				ID:        id,
				OwnerID:   "user-1",
				ListingID: "lst_1",
				Status:    domain.OrderStatusPending,
			}, nil
		},
		updateFn: func(_ context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error) {
			noted = order
			return order, nil
		},
	}
	svc, err := NewReconcilerService(ReconcilerServiceDeps{
		Listings: listings,
		Orders:   orders,
		Sessions: newMemorySlotStore(),
		Events:   &stubEventPublisher{},
	})
	if err != nil {
		t.Fatalf("NewReconcilerService: %v", err)
	}

	_, err = svc.Reconcile(context.Background(), ReconcileCommand{
		OrderID: "ord_1",
		Source:  domain.SignalSourceWebhookPaid,
	})
	if !errors.Is(err, ErrReconcileUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if noted.Status != domain.OrderStatusPending {
		t.Fatalf("expected order left unpaid after store failure, got %s", noted.Status)
	}
	if len(noted.Notes) != 1 || !strings.Contains(noted.Notes[0].Message, "failed") {
		t.Fatalf("expected failure note on order, got %+v", noted.Notes)
	}
}

func TestReconcileRequiresReference(t *testing.T) {
	f := newReconcilerFixture(t)

	if _, err := f.svc.Reconcile(context.Background(), ReconcileCommand{Source: domain.SignalSourceInternal}); !errors.Is(err, ErrReconcileInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := f.svc.Reconcile(context.Background(), ReconcileCommand{OrderID: "ord_1"}); !errors.Is(err, ErrReconcileInvalidInput) {
		t.Fatalf("expected invalid input without source, got %v", err)
	}
}

func TestNewReconcilerServiceRequiresDependencies(t *testing.T) {
	if _, err := NewReconcilerService(ReconcilerServiceDeps{}); err == nil {
		t.Fatalf("expected error when dependencies missing")
	}
}
