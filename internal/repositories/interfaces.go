package repositories

import (
	"context"
	"time"

	domain "github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/pagination"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Listings() ListingRepository
	PaymentOrders() PaymentOrderRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ListingFilter narrows listing queries. A zero OwnerID matches every
// owner (admin views); a zero Status matches every lifecycle state.
type ListingFilter struct {
	OwnerID  string
	Status   domain.ListingStatus
	Type     domain.ListingType
	PageSize int
	Cursor   pagination.Cursor
}

// ListingPage is one page of listings with the cursor to resume from.
type ListingPage struct {
	Items      []domain.Listing
	NextCursor pagination.Cursor
}

// ListingRepository persists listing aggregates.
type ListingRepository interface {
	// Get retrieves a listing by id. Soft-deleted listings return a
	// RepositoryError with IsNotFound.
	Get(ctx context.Context, listingID string) (domain.Listing, error)
	// Create persists a new listing and returns the stored form.
	Create(ctx context.Context, listing domain.Listing) (domain.Listing, error)
	// Update overwrites the listing. When expectedUpdate is non-nil the
	// write is conditional on the document's last update time and a
	// concurrent modification surfaces as IsConflict.
	Update(ctx context.Context, listing domain.Listing, expectedUpdate *time.Time) (domain.Listing, error)
	// SoftDelete marks the listing deleted without removing the document.
	SoftDelete(ctx context.Context, listingID string, at time.Time) error
	// List returns listings matching the filter ordered by creation time
	// descending.
	List(ctx context.Context, filter ListingFilter) (ListingPage, error)
	// LastUpdateTime reports the persistence-level revision timestamp
	// used for conditional updates.
	LastUpdateTime(ctx context.Context, listingID string) (time.Time, error)
}

// PaymentOrderRepository persists publication-fee orders.
type PaymentOrderRepository interface {
	// Get retrieves an order by id.
	Get(ctx context.Context, orderID string) (domain.PaymentOrder, error)
	// GetBySession retrieves the order created for a checkout session.
	GetBySession(ctx context.Context, sessionID string) (domain.PaymentOrder, error)
	// Create persists a new order.
	Create(ctx context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error)
	// Update overwrites the order, including its audit notes.
	Update(ctx context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error)
}

// HealthRepository aggregates dependency probes for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
