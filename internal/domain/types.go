package domain

import (
	"time"
)

// ListingType identifies which kind of financial listing a document
// represents. The type decides the category it publishes into, the
// editable form fields, and the product billed at checkout.
type ListingType string

const (
	// ListingTypeShareIssue is a primary share issue announcement.
	ListingTypeShareIssue ListingType = "share_issue"
	// ListingTypeShareMarketplace is a secondary-market share sale.
	ListingTypeShareMarketplace ListingType = "share_marketplace"
	// ListingTypePromissoryNote is a promissory note offering.
	ListingTypePromissoryNote ListingType = "promissory_note"
)

// Valid reports whether the type is one of the supported listing kinds.
func (t ListingType) Valid() bool {
	switch t {
	case ListingTypeShareIssue, ListingTypeShareMarketplace, ListingTypePromissoryNote:
		return true
	}
	return false
}

// ListingStatus captures where a listing sits in its lifecycle.
type ListingStatus string

const (
	// ListingStatusDraft marks a listing the owner is still editing.
	ListingStatusDraft ListingStatus = "draft"
	// ListingStatusPending marks a listing submitted for payment and
	// awaiting a confirmation signal.
	ListingStatusPending ListingStatus = "pending"
	// ListingStatusPublished marks a publicly visible listing.
	ListingStatusPublished ListingStatus = "published"
	// ListingStatusHidden marks a published listing its owner withdrew
	// from public view. Republishing a paid hidden listing needs no new
	// payment.
	ListingStatusHidden ListingStatus = "hidden"
)

// Valid reports whether the status is a known lifecycle state.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusDraft, ListingStatusPending, ListingStatusPublished, ListingStatusHidden:
		return true
	}
	return false
}

// Payable reports whether a confirmation signal may still publish a
// listing in this status. Signals arriving for any other status are
// treated as duplicates and ignored.
func (s ListingStatus) Payable() bool {
	return s == ListingStatusDraft || s == ListingStatusPending
}

// Listing is the aggregate root of the lifecycle. Fields holds the
// type-specific form values keyed by schema field name; everything the
// service layer needs to gate transitions lives in typed fields.
type Listing struct {
	ID             string
	OwnerID        string
	Type           ListingType
	Status         ListingStatus
	Title          string
	Category       string
	Fields         map[string]string
	AttachmentPath string
	Paid           bool
	LastPaidOrder  string
	PublishedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Deleted reports whether the listing has been soft-deleted.
func (l Listing) Deleted() bool {
	return l.DeletedAt != nil
}

// ValidityHorizon is how long a published listing stays current before
// the account pages flag it as expired.
const ValidityHorizon = 90 * 24 * time.Hour

// ExpiresAt is the end of the listing's display validity window.
func (l Listing) ExpiresAt() time.Time {
	return l.CreatedAt.Add(ValidityHorizon)
}

// Editable reports whether the owner may still change the listing body.
func (l Listing) Editable() bool {
	return l.Status == ListingStatusDraft || l.Status == ListingStatusPending
}

// SignalSource names the delivery channel that carried a payment
// confirmation. Several channels fire for the same order; the source is
// recorded for audit only and never affects the outcome.
type SignalSource string

const (
	// SignalSourceWebhookPaid is the provider's asynchronous
	// payment-captured webhook event.
	SignalSourceWebhookPaid SignalSource = "webhook_paid"
	// SignalSourceWebhookProcessing is the order-moved-to-processing
	// webhook event.
	SignalSourceWebhookProcessing SignalSource = "webhook_processing"
	// SignalSourceWebhookCompleted is the order-completed webhook event.
	SignalSourceWebhookCompleted SignalSource = "webhook_completed"
	// SignalSourceThankYou is the buyer landing on the post-checkout
	// confirmation page.
	SignalSourceThankYou SignalSource = "thank_you"
	// SignalSourceInternal is a manual status push on the internal API.
	SignalSourceInternal SignalSource = "internal"
)

// OrderStatus tracks the payment order independently of the listing.
type OrderStatus string

const (
	// OrderStatusPending is an order created at checkout and not yet paid.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid is an order with at least one confirmed payment signal.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed is an order whose checkout session expired or failed.
	OrderStatusFailed OrderStatus = "failed"
)

// OrderNote is one line of the order's append-only audit trail.
type OrderNote struct {
	At      time.Time
	Message string
}

// PaymentOrder links a checkout with the listing it pays for. ListingID
// is the durable back-reference consulted first during reconciliation;
// the per-user session slot is only a fallback.
type PaymentOrder struct {
	ID                string
	OwnerID           string
	ListingID         string
	ProductKey        string
	Amount            int64
	Currency          string
	Status            OrderStatus
	CheckoutSessionID string
	Notes             []OrderNote
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Note appends an audit line without mutating the receiver.
func (o PaymentOrder) Note(at time.Time, message string) PaymentOrder {
	notes := make([]OrderNote, 0, len(o.Notes)+1)
	notes = append(notes, o.Notes...)
	notes = append(notes, OrderNote{At: at.UTC(), Message: message})
	o.Notes = notes
	return o
}

// ReconcileOutcome describes what a confirmation signal achieved.
type ReconcileOutcome string

const (
	// ReconcileOutcomePublished means the signal flipped the listing to
	// published. At most one signal per order reports this outcome.
	ReconcileOutcomePublished ReconcileOutcome = "published"
	// ReconcileOutcomeAlreadyPublished means the listing was already
	// past the payable states and the signal was a no-op.
	ReconcileOutcomeAlreadyPublished ReconcileOutcome = "already_published"
	// ReconcileOutcomeListingMissing means no listing could be resolved
	// from the order reference or the session slot.
	ReconcileOutcomeListingMissing ReconcileOutcome = "listing_missing"
	// ReconcileOutcomeOrderMissing means the referenced order is unknown.
	ReconcileOutcomeOrderMissing ReconcileOutcome = "order_missing"
)

// ListingPage is one page of a listing query with an opaque cursor.
type ListingPage struct {
	Items      []Listing
	NextCursor string
}
