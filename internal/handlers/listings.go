package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/auth"
	"github.com/bourseville/listings-api/internal/platform/httpx"
	"github.com/bourseville/listings-api/internal/platform/pagination"
	"github.com/bourseville/listings-api/internal/services"
)

// ListingHandlers serves the public browse and detail endpoints.
type ListingHandlers struct {
	queries services.ListingQueryService
}

// NewListingHandlers wires the public listing endpoints to the query service.
func NewListingHandlers(queries services.ListingQueryService) (*ListingHandlers, error) {
	if queries == nil {
		return nil, errors.New("listing handlers: query service is required")
	}
	return &ListingHandlers{queries: queries}, nil
}

// Routes registers the public listing endpoints.
func (h *ListingHandlers) Routes(r chi.Router) {
	r.Get("/", h.listPublished)
	r.Get("/{listingID}", h.getListing)
}

type listingPayload struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"ownerId"`
	Type           string            `json:"type"`
	Status         string            `json:"status"`
	Title          string            `json:"title,omitempty"`
	Category       string            `json:"category,omitempty"`
	Fields         map[string]string `json:"fields,omitempty"`
	AttachmentPath string            `json:"attachmentPath,omitempty"`
	Paid           bool              `json:"paid"`
	PublishedAt    string            `json:"publishedAt,omitempty"`
	ExpiresAt      string            `json:"expiresAt,omitempty"`
	CreatedAt      string            `json:"createdAt,omitempty"`
	UpdatedAt      string            `json:"updatedAt,omitempty"`
}

func newListingPayload(listing domain.Listing) listingPayload {
	payload := listingPayload{
		ID:             listing.ID,
		OwnerID:        listing.OwnerID,
		Type:           string(listing.Type),
		Status:         string(listing.Status),
		Title:          listing.Title,
		Category:       listing.Category,
		Fields:         listing.Fields,
		AttachmentPath: listing.AttachmentPath,
		Paid:           listing.Paid,
		ExpiresAt:      formatTime(listing.ExpiresAt()),
		CreatedAt:      formatTime(listing.CreatedAt),
		UpdatedAt:      formatTime(listing.UpdatedAt),
	}
	if listing.PublishedAt != nil {
		payload.PublishedAt = formatTime(*listing.PublishedAt)
	}
	return payload
}

type listingPagePayload struct {
	Items         []listingPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func newListingPagePayload(page domain.ListingPage) listingPagePayload {
	payload := listingPagePayload{
		Items:         make([]listingPayload, 0, len(page.Items)),
		NextPageToken: page.NextCursor,
	}
	for _, item := range page.Items {
		payload.Items = append(payload.Items, newListingPayload(item))
	}
	return payload
}

func (h *ListingHandlers) listPublished(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.Parse(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.PublishedQuery{Page: params}
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		listingType := domain.ListingType(raw)
		if !listingType.Valid() {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "unknown listing type", http.StatusBadRequest))
			return
		}
		query.Type = listingType
	}

	page, err := h.queries.ListPublished(r.Context(), query)
	if err != nil {
		writeListingQueryError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, newListingPagePayload(page))
}

func (h *ListingHandlers) getListing(w http.ResponseWriter, r *http.Request) {
	cmd := services.GetListingCommand{ListingID: chi.URLParam(r, "listingID")}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		cmd.Actor = actorFromIdentity(identity)
	}

	listing, err := h.queries.GetListing(r.Context(), cmd)
	if err != nil {
		writeListingQueryError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, newListingPayload(listing))
}

func writeListingQueryError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrQueryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid listing query", http.StatusBadRequest))
	case errors.Is(err, services.ErrQueryListingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("listing_not_found", "listing not found", http.StatusNotFound))
	case errors.Is(err, services.ErrQueryNotAuthorized):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to view this listing", http.StatusForbidden))
	case errors.Is(err, services.ErrQueryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "listing store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
