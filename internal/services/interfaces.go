package services

import (
	"context"
	"time"

	domain "github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/pagination"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Listing            = domain.Listing
	ListingType        = domain.ListingType
	ListingStatus      = domain.ListingStatus
	ListingPage        = domain.ListingPage
	PaymentOrder       = domain.PaymentOrder
	OrderNote          = domain.OrderNote
	OrderStatus        = domain.OrderStatus
	SignalSource       = domain.SignalSource
	ReconcileOutcome   = domain.ReconcileOutcome
	SystemHealthReport = domain.SystemHealthReport
)

// Actor is the authenticated principal acting on a listing. Admins may
// manage any listing but still pay only for their own.
type Actor struct {
	ID    string
	Admin bool
}

// DraftService manages the editable phase of the lifecycle: creating,
// updating, and deleting drafts, and attaching the marketing material file.
type DraftService interface {
	SaveDraft(ctx context.Context, cmd SaveDraftCommand) (Listing, error)
	DeleteDraft(ctx context.Context, cmd DeleteDraftCommand) error
	AttachFile(ctx context.Context, cmd AttachFileCommand) (AttachmentUpload, error)
}

// CheckoutService starts the publication-fee payment for a draft.
type CheckoutService interface {
	InitiateCheckout(ctx context.Context, cmd InitiateCheckoutCommand) (CheckoutRedirect, error)
}

// ReconcilerService converges redundant payment-confirmation signals
// onto the publish transition. Every delivery channel funnels here.
type ReconcilerService interface {
	Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error)
}

// VisibilityService toggles published listings in and out of public view.
type VisibilityService interface {
	Hide(ctx context.Context, cmd VisibilityCommand) (Listing, error)
	Republish(ctx context.Context, cmd VisibilityCommand) (Listing, error)
}

// ListingQueryService serves listing reads for public and account pages.
type ListingQueryService interface {
	GetListing(ctx context.Context, cmd GetListingCommand) (Listing, error)
	ListPublished(ctx context.Context, query PublishedQuery) (ListingPage, error)
	ListOwned(ctx context.Context, query OwnedQuery) (ListingPage, error)
}

// SystemService exposes operational health information.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// SaveDraftCommand creates a listing draft or autosaves an existing
// one. An empty ListingID creates; Type is optional and may be set on
// any save. Fields are upserted key by key: an empty value clears the
// key, unknown keys pass through untouched.
type SaveDraftCommand struct {
	Actor     Actor
	ListingID string
	Type      ListingType
	Fields    map[string]string
}

// DeleteDraftCommand soft-deletes an unpaid draft.
type DeleteDraftCommand struct {
	Actor     Actor
	ListingID string
}

// AttachFileCommand requests a signed upload slot for the listing's
// marketing material file.
type AttachFileCommand struct {
	Actor       Actor
	ListingID   string
	FileName    string
	ContentType string
	ContentMD5  string
	MaxSize     int64
}

// AttachmentUpload is a signed upload destination the client PUTs the
// file to directly.
type AttachmentUpload struct {
	Path      string
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// InitiateCheckoutCommand starts payment of the publication fee for the
// actor's own draft.
type InitiateCheckoutCommand struct {
	Actor         Actor
	ListingID     string
	CustomerEmail string
	Locale        string
}

// CheckoutRedirect points the payer at the provider-hosted checkout.
type CheckoutRedirect struct {
	OrderID     string
	SessionID   string
	RedirectURL string
	Provider    string
	Amount      int64
	Currency    string
	ExpiresAt   time.Time
}

// ReconcileCommand is one payment-confirmation delivery. OrderID is
// preferred; SessionID resolves the order when the delivery only
// carries the provider session reference.
type ReconcileCommand struct {
	OrderID   string
	SessionID string
	Source    SignalSource
}

// ReconcileResult reports what the delivery achieved.
type ReconcileResult struct {
	Outcome   ReconcileOutcome
	OrderID   string
	ListingID string
}

// VisibilityCommand identifies the listing a hide or republish targets.
type VisibilityCommand struct {
	Actor     Actor
	ListingID string
}

// GetListingCommand reads one listing. Published listings are public;
// anything else requires the actor to manage the listing.
type GetListingCommand struct {
	Actor     Actor
	ListingID string
}

// PublishedQuery pages through publicly visible listings.
type PublishedQuery struct {
	Type ListingType
	Page pagination.Params
}

// OwnedQuery pages through an account's listings. Non-admin actors are
// always scoped to their own listings; admins may query any owner or,
// with an empty OwnerID, every owner.
type OwnedQuery struct {
	Actor   Actor
	OwnerID string
	Status  ListingStatus
	Page    pagination.Params
}
