package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/events"
	"github.com/bourseville/listings-api/internal/repositories"
)

var (
	// ErrVisibilityInvalidInput indicates the caller supplied invalid input parameters.
	ErrVisibilityInvalidInput = errors.New("visibility: invalid input")
	// ErrVisibilityListingNotFound indicates the listing does not exist.
	ErrVisibilityListingNotFound = errors.New("visibility: listing not found")
	// ErrVisibilityNotAuthorized indicates the actor may not manage the listing.
	ErrVisibilityNotAuthorized = errors.New("visibility: not authorized")
	// ErrVisibilityInvalidTransition indicates the listing is not in the
	// state the requested transition starts from.
	ErrVisibilityInvalidTransition = errors.New("visibility: invalid transition")
	// ErrVisibilityPaymentRequired indicates the listing has never been
	// paid for and cannot return to public view without a checkout.
	ErrVisibilityPaymentRequired = errors.New("visibility: payment required")
	// ErrVisibilityConflict indicates a concurrent modification was detected.
	ErrVisibilityConflict = errors.New("visibility: conflict")
	// ErrVisibilityUnavailable indicates visibility dependencies are currently unavailable.
	ErrVisibilityUnavailable = errors.New("visibility: unavailable")
)

// VisibilityServiceDeps wires the dependencies required by the visibility service.
type VisibilityServiceDeps struct {
	Listings repositories.ListingRepository
	Events   LifecycleEventPublisher
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type visibilityService struct {
	listings repositories.ListingRepository
	events   LifecycleEventPublisher
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewVisibilityService constructs a VisibilityService validating required dependencies.
func NewVisibilityService(deps VisibilityServiceDeps) (VisibilityService, error) {
	if deps.Listings == nil {
		return nil, errors.New("visibility service: listing repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &visibilityService{
		listings: deps.Listings,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Hide withdraws a published listing from public view. The paid flag
// survives so the owner can republish later without paying again.
func (s *visibilityService) Hide(ctx context.Context, cmd VisibilityCommand) (Listing, error) {
	return s.transition(ctx, cmd, domain.ListingStatusHidden)
}

// Republish returns a hidden, previously paid listing to public view.
func (s *visibilityService) Republish(ctx context.Context, cmd VisibilityCommand) (Listing, error) {
	return s.transition(ctx, cmd, domain.ListingStatusPublished)
}

func (s *visibilityService) transition(ctx context.Context, cmd VisibilityCommand, target domain.ListingStatus) (Listing, error) {
	if s == nil || s.listings == nil {
		return Listing{}, ErrVisibilityUnavailable
	}
	listingID := strings.TrimSpace(cmd.ListingID)
	if strings.TrimSpace(cmd.Actor.ID) == "" || listingID == "" {
		return Listing{}, ErrVisibilityInvalidInput
	}

	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return Listing{}, s.translateError(err)
	}
	if !canManage(cmd.Actor, listing) {
		return Listing{}, ErrVisibilityNotAuthorized
	}

	now := s.now()
	event := ""
	switch target {
	case domain.ListingStatusHidden:
		if listing.Status != domain.ListingStatusPublished {
			return Listing{}, ErrVisibilityInvalidTransition
		}
		listing.Status = domain.ListingStatusHidden
		event = events.EventListingHidden
	case domain.ListingStatusPublished:
		if listing.Status != domain.ListingStatusHidden {
			return Listing{}, ErrVisibilityInvalidTransition
		}
		if !listing.Paid {
			return Listing{}, ErrVisibilityPaymentRequired
		}
		listing.Status = domain.ListingStatusPublished
		listing.Category = domain.CategoryForType(listing.Type)
		publishedAt := now
		listing.PublishedAt = &publishedAt
		event = events.EventListingRepublished
	default:
		return Listing{}, ErrVisibilityInvalidInput
	}

	expectedUpdate := listing.UpdatedAt
	listing.UpdatedAt = now
	saved, err := s.listings.Update(ctx, listing, &expectedUpdate)
	if err != nil {
		return Listing{}, s.translateError(err)
	}

	s.logger(ctx, "visibility.transitioned", map[string]any{
		"listingId": saved.ID,
		"ownerId":   saved.OwnerID,
		"status":    string(saved.Status),
	})
	s.emit(ctx, event, saved, now)
	return saved, nil
}

func (s *visibilityService) emit(ctx context.Context, event string, listing domain.Listing, now time.Time) {
	if s.events == nil || event == "" {
		return
	}
	if _, err := s.events.PublishLifecycleEvent(ctx, events.LifecycleMessage{
		Event:      event,
		ListingID:  listing.ID,
		OwnerID:    listing.OwnerID,
		Type:       string(listing.Type),
		OrderID:    listing.LastPaidOrder,
		OccurredAt: now,
	}); err != nil {
		s.logger(ctx, "visibility.event_publish_failed", map[string]any{
			"event":     event,
			"listingId": listing.ID,
			"error":     err.Error(),
		})
	}
}

func (s *visibilityService) translateError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrVisibilityListingNotFound
		case repoErr.IsConflict():
			return ErrVisibilityConflict
		default:
			return ErrVisibilityUnavailable
		}
	}
	return ErrVisibilityUnavailable
}
