package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/events"
)

func newVisibilityService(t *testing.T, deps VisibilityServiceDeps) VisibilityService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	}
	svc, err := NewVisibilityService(deps)
	if err != nil {
		t.Fatalf("NewVisibilityService: %v", err)
	}
	return svc
}

func publishedListing(owner string) domain.Listing {
	publishedAt := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return domain.Listing{
		ID:            "lst_1",
		OwnerID:       owner,
		Type:          domain.ListingTypeShareIssue,
		Status:        domain.ListingStatusPublished,
		Paid:          true,
		LastPaidOrder: "ord_1",
		PublishedAt:   &publishedAt,
		UpdatedAt:     publishedAt,
	}
}

func TestHidePublishedListing(t *testing.T) {
	var saved domain.Listing
	listings := &stubListingRepository{
		getFn: func(_ context.Context, id string) (domain.Listing, error) {
			return publishedListing("user-1"), nil
		},
		updateFn: func(_ context.Context, listing domain.Listing, expectedUpdate *time.Time) (domain.Listing, error) {
			if expectedUpdate == nil {
				t.Fatalf("expected conditional update")
			}
			saved = listing
			return listing, nil
		},
	}
	publisher := &stubEventPublisher{}
	svc := newVisibilityService(t, VisibilityServiceDeps{Listings: listings, Events: publisher})

	listing, err := svc.Hide(context.Background(), VisibilityCommand{
		Actor:     Actor{ID: "user-1"},
		ListingID: "lst_1",
	})
	if err != nil {
		t.Fatalf("Hide: %v", err)
	}

	if listing.Status != domain.ListingStatusHidden {
		t.Fatalf("expected hidden, got %s", listing.Status)
	}
	if !saved.Paid {
		t.Fatalf("expected paid flag to survive hiding")
	}
	if len(publisher.messages) != 1 || publisher.messages[0].Event != events.EventListingHidden {
		t.Fatalf("expected hidden event, got %+v", publisher.messages)
	}
}

func TestHideRejectsNonPublished(t *testing.T) {
	listings := &stubListingRepository{
		getFn: func(_ context.Context, id string) (domain.Listing, error) {
			listing := publishedListing("user-1")
			listing.Status = domain.ListingStatusDraft
			listing.Paid = false
			return listing, nil
		},
	}
	svc := newVisibilityService(t, VisibilityServiceDeps{Listings: listings})

	_, err := svc.Hide(context.Background(), VisibilityCommand{
		Actor:     Actor{ID: "user-1"},
		ListingID: "lst_1",
	})
	if !errors.Is(err, ErrVisibilityInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestRepublishPaidHiddenListing(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	listings := &stubListingRepository{
		getFn: func(_ context.Context, id string) (domain.Listing, error) {
			listing := publishedListing("user-1")
			listing.Status = domain.ListingStatusHidden
			return listing, nil
		},
		updateFn: func(_ context.Context, listing domain.Listing, _ *time.Time) (domain.Listing, error) {
			return listing, nil
		},
	}
	publisher := &stubEventPublisher{}
	svc := newVisibilityService(t, VisibilityServiceDeps{
		Listings: listings,
		Events:   publisher,
		Clock:    func() time.Time { return now },
	})

	listing, err := svc.Republish(context.Background(), VisibilityCommand{
		Actor:     Actor{ID: "user-1"},
		ListingID: "lst_1",
	})
	if err != nil {
		t.Fatalf("Republish: %v", err)
	}

	if listing.Status != domain.ListingStatusPublished {
		t.Fatalf("expected published, got %s", listing.Status)
	}
	if listing.PublishedAt == nil || !listing.PublishedAt.Equal(now) {
		t.Fatalf("expected publishedAt refreshed")
	}
	if listing.Category != domain.CategoryForType(domain.ListingTypeShareIssue) {
		t.Fatalf("expected category rederived, got %s", listing.Category)
	}
	if len(publisher.messages) != 1 || publisher.messages[0].Event != events.EventListingRepublished {
		t.Fatalf("expected republished event, got %+v", publisher.messages)
	}
	if publisher.messages[0].OrderID != "ord_1" {
		t.Fatalf("expected original paid order on event, got %s", publisher.messages[0].OrderID)
	}
}

func TestRepublishRequiresPayment(t *testing.T) {
	listings := &stubListingRepository{
		getFn: func(_ context.Context, id string) (domain.Listing, error) {
			listing := publishedListing("user-1")
			listing.Status = domain.ListingStatusHidden
			listing.Paid = false
			listing.LastPaidOrder = ""
			return listing, nil
		},
	}
	svc := newVisibilityService(t, VisibilityServiceDeps{Listings: listings})

	_, err := svc.Republish(context.Background(), VisibilityCommand{
		Actor:     Actor{ID: "user-1"},
		ListingID: "lst_1",
	})
	if !errors.Is(err, ErrVisibilityPaymentRequired) {
		t.Fatalf("expected payment required, got %v", err)
	}
}

func TestVisibilityRejectsStrangers(t *testing.T) {
	listings := &stubListingRepository{
		getFn: func(_ context.Context, id string) (domain.Listing, error) {
			return publishedListing("user-1"), nil
		},
	}
	svc := newVisibilityService(t, VisibilityServiceDeps{Listings: listings})

	_, err := svc.Hide(context.Background(), VisibilityCommand{
		Actor:     Actor{ID: "user-2"},
		ListingID: "lst_1",
	})
	if !errors.Is(err, ErrVisibilityNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
}

func TestVisibilityAllowsAdmin(t *testing.T) {
	listings := &stubListingRepository{
		getFn: func(_ context.Context, id string) (domain.Listing, error) {
			return publishedListing("user-1"), nil
		},
		updateFn: func(_ context.Context, listing domain.Listing, _ *time.Time) (domain.Listing, error) {
			return listing, nil
		},
	}
	svc := newVisibilityService(t, VisibilityServiceDeps{Listings: listings})

	listing, err := svc.Hide(context.Background(), VisibilityCommand{
		Actor:     Actor{ID: "admin-1", Admin: true},
		ListingID: "lst_1",
	})
	if err != nil {
		t.Fatalf("Hide as admin: %v", err)
	}
	if listing.Status != domain.ListingStatusHidden {
		t.Fatalf("expected hidden, got %s", listing.Status)
	}
}

func TestVisibilityTranslatesConflict(t *testing.T) {
	listings := &stubListingRepository{
		getFn: func(_ context.Context, id string) (domain.Listing, error) {
			return publishedListing("user-1"), nil
		},
		updateFn: func(context.Context, domain.Listing, *time.Time) (domain.Listing, error) {
			return domain.Listing{}, &repoError{conflict: true}
		},
	}
	svc := newVisibilityService(t, VisibilityServiceDeps{Listings: listings})

	_, err := svc.Hide(context.Background(), VisibilityCommand{
		Actor:     Actor{ID: "user-1"},
		ListingID: "lst_1",
	})
	if !errors.Is(err, ErrVisibilityConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
