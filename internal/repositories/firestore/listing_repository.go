package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/bourseville/listings-api/internal/domain"
	pfirestore "github.com/bourseville/listings-api/internal/platform/firestore"
	"github.com/bourseville/listings-api/internal/platform/pagination"
	"github.com/bourseville/listings-api/internal/repositories"
)

const (
	listingCollection = "listings"
)

// ListingRepository persists listing aggregates within Firestore.
type ListingRepository struct {
	base     *pfirestore.BaseRepository[listingDocument]
	provider *pfirestore.Provider
}

// NewListingRepository constructs a Firestore-backed listing repository.
func NewListingRepository(provider *pfirestore.Provider) (*ListingRepository, error) {
	if provider == nil {
		return nil, errors.New("listing repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[listingDocument](provider, listingCollection, nil, nil)
	return &ListingRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Get loads the listing by ID. Soft-deleted documents surface as not found.
func (r *ListingRepository) Get(ctx context.Context, listingID string) (domain.Listing, error) {
	if r == nil || r.base == nil {
		return domain.Listing{}, errors.New("listing repository not initialised")
	}
	id := strings.TrimSpace(listingID)
	if id == "" {
		return domain.Listing{}, errors.New("listing repository: listing id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	if doc.Data.Deleted {
		return domain.Listing{}, pfirestore.WrapError("listings.get", status.Error(codes.NotFound, "listing deleted"))
	}

	return listingFromDocument(doc), nil
}

// Create persists a new listing document under the listing's ID.
func (r *ListingRepository) Create(ctx context.Context, listing domain.Listing) (domain.Listing, error) {
	if r == nil || r.base == nil {
		return domain.Listing{}, errors.New("listing repository not initialised")
	}
	id := strings.TrimSpace(listing.ID)
	if id == "" {
		return domain.Listing{}, errors.New("listing repository: listing id is required")
	}

	doc := listingToDocument(listing)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}

	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.Listing{}, err
	}

	saved := listing
	saved.ID = id
	saved.CreatedAt = doc.CreatedAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Update overwrites the listing document. A non-nil expectedUpdate makes
// the write conditional on the document's last update time so concurrent
// modifications surface as conflicts.
func (r *ListingRepository) Update(ctx context.Context, listing domain.Listing, expectedUpdate *time.Time) (domain.Listing, error) {
	if r == nil || r.base == nil {
		return domain.Listing{}, errors.New("listing repository not initialised")
	}
	id := strings.TrimSpace(listing.ID)
	if id == "" {
		return domain.Listing{}, errors.New("listing repository: listing id is required")
	}

	doc := listingToDocument(listing)
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}

	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err := r.base.Set(ctx, id, doc)
		if err != nil {
			return domain.Listing{}, err
		}
		saved := listing
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	updates := []firestore.Update{
		{Path: "ownerId", Value: doc.OwnerID},
		{Path: "type", Value: doc.Type},
		{Path: "status", Value: doc.Status},
		{Path: "title", Value: doc.Title},
		{Path: "category", Value: doc.Category},
		{Path: "paid", Value: doc.Paid},
		{Path: "deleted", Value: doc.Deleted},
		{Path: "updatedAt", Value: doc.UpdatedAt},
		{Path: "createdAt", Value: doc.CreatedAt},
	}

	appendStringUpdate := func(path string, value string) {
		if strings.TrimSpace(value) == "" {
			updates = append(updates, firestore.Update{Path: path, Value: firestore.Delete})
		} else {
			updates = append(updates, firestore.Update{Path: path, Value: value})
		}
	}
	appendStringUpdate("attachmentPath", doc.AttachmentPath)
	appendStringUpdate("lastPaidOrder", doc.LastPaidOrder)

	if len(doc.Fields) == 0 {
		updates = append(updates, firestore.Update{Path: "fields", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "fields", Value: doc.Fields})
	}
	if doc.PublishedAt == nil {
		updates = append(updates, firestore.Update{Path: "publishedAt", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "publishedAt", Value: *doc.PublishedAt})
	}
	if doc.DeletedAt == nil {
		updates = append(updates, firestore.Update{Path: "deletedAt", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "deletedAt", Value: *doc.DeletedAt})
	}

	result, err := r.base.Update(ctx, id, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
	if err != nil {
		return domain.Listing{}, err
	}

	saved := listing
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// SoftDelete marks the listing deleted without removing the document.
func (r *ListingRepository) SoftDelete(ctx context.Context, listingID string, at time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("listing repository not initialised")
	}
	id := strings.TrimSpace(listingID)
	if id == "" {
		return errors.New("listing repository: listing id is required")
	}

	when := at.UTC()
	if when.IsZero() {
		when = time.Now().UTC()
	}

	updates := []firestore.Update{
		{Path: "deleted", Value: true},
		{Path: "deletedAt", Value: when},
		{Path: "updatedAt", Value: when},
	}
	_, err := r.base.Update(ctx, id, updates)
	return err
}

// List returns listings matching the filter ordered by creation time
// descending with the document ID as tie breaker.
func (r *ListingRepository) List(ctx context.Context, filter repositories.ListingFilter) (repositories.ListingPage, error) {
	if r == nil || r.base == nil {
		return repositories.ListingPage{}, errors.New("listing repository not initialised")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.MaxPageSize {
		pageSize = pagination.MaxPageSize
	}

	startAfter, err := listingCursorValues(filter.Cursor)
	if err != nil {
		return repositories.ListingPage{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("deleted", "==", false)
		if owner := strings.TrimSpace(filter.OwnerID); owner != "" {
			query = query.Where("ownerId", "==", owner)
		}
		if filter.Status != "" {
			query = query.Where("status", "==", string(filter.Status))
		}
		if filter.Type != "" {
			query = query.Where("type", "==", string(filter.Type))
		}
		query = query.
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) > 0 {
			query = query.StartAfter(startAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return repositories.ListingPage{}, err
	}

	page := repositories.ListingPage{}
	truncated := len(docs) > pageSize
	if truncated {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, listingFromDocument(doc))
	}
	if truncated && len(docs) > 0 {
		last := docs[len(docs)-1]
		page.NextCursor = pagination.Cursor{StartAfter: []any{
			last.Data.CreatedAt.UTC().Format(time.RFC3339Nano),
			last.ID,
		}}
	}
	return page, nil
}

// LastUpdateTime reports the document's revision timestamp for
// conditional updates.
func (r *ListingRepository) LastUpdateTime(ctx context.Context, listingID string) (time.Time, error) {
	if r == nil || r.base == nil {
		return time.Time{}, errors.New("listing repository not initialised")
	}
	id := strings.TrimSpace(listingID)
	if id == "" {
		return time.Time{}, errors.New("listing repository: listing id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	return doc.UpdateTime, nil
}

// listingCursorValues converts the opaque cursor back into typed query
// boundaries. Page tokens round-trip through JSON, so the createdAt
// boundary arrives as an RFC 3339 string.
func listingCursorValues(cursor pagination.Cursor) ([]any, error) {
	if cursor.Empty() {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, pagination.ErrInvalidPageToken
	}

	rawCreated, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreated)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}

	id, ok := cursor.StartAfter[1].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return nil, pagination.ErrInvalidPageToken
	}

	return []any{createdAt, id}, nil
}

func listingToDocument(listing domain.Listing) listingDocument {
	doc := listingDocument{
		OwnerID:        strings.TrimSpace(listing.OwnerID),
		Type:           string(listing.Type),
		Status:         string(listing.Status),
		Title:          strings.TrimSpace(listing.Title),
		Category:       strings.TrimSpace(listing.Category),
		Fields:         cloneStringMap(listing.Fields),
		AttachmentPath: strings.TrimSpace(listing.AttachmentPath),
		Paid:           listing.Paid,
		LastPaidOrder:  strings.TrimSpace(listing.LastPaidOrder),
		Deleted:        listing.DeletedAt != nil,
		CreatedAt:      listing.CreatedAt.UTC(),
		UpdatedAt:      listing.UpdatedAt.UTC(),
	}
	if listing.PublishedAt != nil {
		published := listing.PublishedAt.UTC()
		doc.PublishedAt = &published
	}
	if listing.DeletedAt != nil {
		deleted := listing.DeletedAt.UTC()
		doc.DeletedAt = &deleted
	}
	return doc
}

func listingFromDocument(doc pfirestore.Document[listingDocument]) domain.Listing {
	listing := domain.Listing{
		ID:             doc.ID,
		OwnerID:        strings.TrimSpace(doc.Data.OwnerID),
		Type:           domain.ListingType(doc.Data.Type),
		Status:         domain.ListingStatus(doc.Data.Status),
		Title:          strings.TrimSpace(doc.Data.Title),
		Category:       strings.TrimSpace(doc.Data.Category),
		Fields:         cloneStringMap(doc.Data.Fields),
		AttachmentPath: strings.TrimSpace(doc.Data.AttachmentPath),
		Paid:           doc.Data.Paid,
		LastPaidOrder:  strings.TrimSpace(doc.Data.LastPaidOrder),
		CreatedAt:      doc.Data.CreatedAt,
		UpdatedAt: func() time.Time {
			if !doc.UpdateTime.IsZero() {
				return doc.UpdateTime
			}
			return doc.Data.UpdatedAt
		}(),
	}
	if doc.Data.PublishedAt != nil {
		published := *doc.Data.PublishedAt
		listing.PublishedAt = &published
	}
	if doc.Data.DeletedAt != nil {
		deleted := *doc.Data.DeletedAt
		listing.DeletedAt = &deleted
	}
	return listing
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

type listingDocument struct {
	OwnerID        string            `firestore:"ownerId"`
	Type           string            `firestore:"type"`
	Status         string            `firestore:"status"`
	Title          string            `firestore:"title,omitempty"`
	Category       string            `firestore:"category,omitempty"`
	Fields         map[string]string `firestore:"fields,omitempty"`
	AttachmentPath string            `firestore:"attachmentPath,omitempty"`
	Paid           bool              `firestore:"paid"`
	LastPaidOrder  string            `firestore:"lastPaidOrder,omitempty"`
	Deleted        bool              `firestore:"deleted"`
	PublishedAt    *time.Time        `firestore:"publishedAt,omitempty"`
	DeletedAt      *time.Time        `firestore:"deletedAt,omitempty"`
	CreatedAt      time.Time         `firestore:"createdAt"`
	UpdatedAt      time.Time         `firestore:"updatedAt"`
}

var _ repositories.ListingRepository = (*ListingRepository)(nil)
