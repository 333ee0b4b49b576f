package services

import (
	"context"
	"errors"
	"strings"

	domain "github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/pagination"
	"github.com/bourseville/listings-api/internal/repositories"
)

var (
	// ErrQueryInvalidInput indicates the caller supplied invalid input parameters.
	ErrQueryInvalidInput = errors.New("listing query: invalid input")
	// ErrQueryListingNotFound indicates the listing does not exist.
	ErrQueryListingNotFound = errors.New("listing query: listing not found")
	// ErrQueryNotAuthorized indicates the actor may not read the listing.
	ErrQueryNotAuthorized = errors.New("listing query: not authorized")
	// ErrQueryUnavailable indicates query dependencies are currently unavailable.
	ErrQueryUnavailable = errors.New("listing query: unavailable")
)

// ListingQueryServiceDeps wires the dependencies required by the query service.
type ListingQueryServiceDeps struct {
	Listings repositories.ListingRepository
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type listingQueryService struct {
	listings repositories.ListingRepository
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewListingQueryService constructs a ListingQueryService validating required dependencies.
func NewListingQueryService(deps ListingQueryServiceDeps) (ListingQueryService, error) {
	if deps.Listings == nil {
		return nil, errors.New("listing query service: listing repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &listingQueryService{
		listings: deps.Listings,
		logger:   logger,
	}, nil
}

// GetListing reads one listing. Published listings are public; any other
// state is only visible to whoever manages the listing.
func (s *listingQueryService) GetListing(ctx context.Context, cmd GetListingCommand) (Listing, error) {
	if s == nil || s.listings == nil {
		return Listing{}, ErrQueryUnavailable
	}
	listingID := strings.TrimSpace(cmd.ListingID)
	if listingID == "" {
		return Listing{}, ErrQueryInvalidInput
	}

	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return Listing{}, s.translateError(err)
	}
	if listing.Status == domain.ListingStatusPublished {
		return listing, nil
	}
	if !canManage(cmd.Actor, listing) {
		// Do not leak existence of unpublished listings.
		return Listing{}, ErrQueryListingNotFound
	}
	return listing, nil
}

// ListPublished pages through publicly visible listings, optionally
// narrowed to one listing type.
func (s *listingQueryService) ListPublished(ctx context.Context, query PublishedQuery) (ListingPage, error) {
	if s == nil || s.listings == nil {
		return ListingPage{}, ErrQueryUnavailable
	}
	if query.Type != "" && !query.Type.Valid() {
		return ListingPage{}, ErrQueryInvalidInput
	}

	return s.list(ctx, repositories.ListingFilter{
		Status:   domain.ListingStatusPublished,
		Type:     query.Type,
		PageSize: query.Page.PageSize,
		Cursor:   query.Page.Cursor,
	})
}

// ListOwned pages through an account's listings. Non-admin actors are
// always scoped to their own listings regardless of the requested owner.
func (s *listingQueryService) ListOwned(ctx context.Context, query OwnedQuery) (ListingPage, error) {
	if s == nil || s.listings == nil {
		return ListingPage{}, ErrQueryUnavailable
	}
	actorID := strings.TrimSpace(query.Actor.ID)
	if actorID == "" {
		return ListingPage{}, ErrQueryInvalidInput
	}
	if query.Status != "" && !query.Status.Valid() {
		return ListingPage{}, ErrQueryInvalidInput
	}

	ownerID := strings.TrimSpace(query.OwnerID)
	if !query.Actor.Admin {
		ownerID = actorID
	}

	return s.list(ctx, repositories.ListingFilter{
		OwnerID:  ownerID,
		Status:   query.Status,
		PageSize: query.Page.PageSize,
		Cursor:   query.Page.Cursor,
	})
}

func (s *listingQueryService) list(ctx context.Context, filter repositories.ListingFilter) (ListingPage, error) {
	page, err := s.listings.List(ctx, filter)
	if err != nil {
		return ListingPage{}, s.translateError(err)
	}

	token, err := pagination.EncodeToken(page.NextCursor)
	if err != nil {
		return ListingPage{}, ErrQueryUnavailable
	}
	return ListingPage{
		Items:      page.Items,
		NextCursor: token,
	}, nil
}

func (s *listingQueryService) translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return ErrQueryInvalidInput
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrQueryListingNotFound
		}
		return ErrQueryUnavailable
	}
	return ErrQueryUnavailable
}
