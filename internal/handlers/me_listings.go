package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/auth"
	"github.com/bourseville/listings-api/internal/platform/captoken"
	"github.com/bourseville/listings-api/internal/platform/httpx"
	"github.com/bourseville/listings-api/internal/platform/i18n"
	"github.com/bourseville/listings-api/internal/platform/pagination"
	"github.com/bourseville/listings-api/internal/services"
)

const (
	maxDraftBodySize      = 64 * 1024
	maxAttachmentBodySize = 8 * 1024
	maxCheckoutBodySize   = 8 * 1024
)

// MeHandlers exposes the authenticated listing-management endpoints for
// the current account.
type MeHandlers struct {
	authn      *auth.Authenticator
	drafts     services.DraftService
	checkout   services.CheckoutService
	visibility services.VisibilityService
	queries    services.ListingQueryService
	tokens     *captoken.Issuer
}

// MeHandlersDeps carries the collaborators MeHandlers requires.
type MeHandlersDeps struct {
	Authenticator *auth.Authenticator
	Drafts        services.DraftService
	Checkout      services.CheckoutService
	Visibility    services.VisibilityService
	Queries       services.ListingQueryService
	Tokens        *captoken.Issuer
}

// NewMeHandlers constructs handlers enforcing Firebase authentication
// before invoking the listing services.
func NewMeHandlers(deps MeHandlersDeps) (*MeHandlers, error) {
	if deps.Drafts == nil {
		return nil, errors.New("me handlers: draft service is required")
	}
	if deps.Checkout == nil {
		return nil, errors.New("me handlers: checkout service is required")
	}
	if deps.Visibility == nil {
		return nil, errors.New("me handlers: visibility service is required")
	}
	if deps.Queries == nil {
		return nil, errors.New("me handlers: listing query service is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("me handlers: token issuer is required")
	}
	return &MeHandlers{
		authn:      deps.Authenticator,
		drafts:     deps.Drafts,
		checkout:   deps.Checkout,
		visibility: deps.Visibility,
		queries:    deps.Queries,
		tokens:     deps.Tokens,
	}, nil
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/listings", h.listOwned)
	r.Post("/listings", h.createDraft)
	r.Route("/listings/{listingID}", func(item chi.Router) {
		item.Put("/", h.updateDraft)
		item.Delete("/", h.deleteDraft)
		item.Post("/attachment", h.attachFile)
		item.Post("/checkout", h.initiateCheckout)
		item.Post("/hide", h.hide)
		item.Post("/republish", h.republish)
	})
}

type saveDraftRequest struct {
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields"`
}

type attachFileRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	ContentMD5  string `json:"contentMd5,omitempty"`
	MaxSize     int64  `json:"maxSize,omitempty"`
}

type initiateCheckoutRequest struct {
	CustomerEmail string `json:"customerEmail,omitempty"`
	Locale        string `json:"locale,omitempty"`
}

// listingActionsPayload carries pre-signed action tokens for the
// transitions currently available on a listing.
type listingActionsPayload struct {
	Delete    string `json:"delete,omitempty"`
	Hide      string `json:"hide,omitempty"`
	Republish string `json:"republish,omitempty"`
}

type ownedListingPayload struct {
	listingPayload
	Actions *listingActionsPayload `json:"actions,omitempty"`
}

type ownedListingPagePayload struct {
	Items         []ownedListingPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type draftResponse struct {
	Listing listingPayload `json:"listing"`
}

type attachFileResponse struct {
	Path      string            `json:"path"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt string            `json:"expiresAt,omitempty"`
}

type initiateCheckoutResponse struct {
	OrderID     string `json:"orderId"`
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
	Provider    string `json:"provider"`
	Amount      int64  `json:"amount,omitempty"`
	Currency    string `json:"currency,omitempty"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
}

type noticeResponse struct {
	Listing *listingPayload `json:"listing,omitempty"`
	Notice  string          `json:"notice"`
}

func (h *MeHandlers) requireActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return actorFromIdentity(identity), true
}

func (h *MeHandlers) listOwned(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	params, err := pagination.Parse(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OwnedQuery{Actor: actor, Page: params}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.ListingStatus(raw)
		if !status.Valid() {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "unknown listing status", http.StatusBadRequest))
			return
		}
		query.Status = status
	}
	if actor.Admin {
		query.OwnerID = strings.TrimSpace(r.URL.Query().Get("ownerId"))
	}

	page, err := h.queries.ListOwned(r.Context(), query)
	if err != nil {
		writeListingQueryError(w, r, err)
		return
	}

	payload := ownedListingPagePayload{
		Items:         make([]ownedListingPayload, 0, len(page.Items)),
		NextPageToken: page.NextCursor,
	}
	for _, item := range page.Items {
		payload.Items = append(payload.Items, ownedListingPayload{
			listingPayload: newListingPayload(item),
			Actions:        h.issueActions(item),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// issueActions signs action tokens for the transitions the listing's
// current status allows. Issue failures degrade to a payload without
// actions rather than failing the whole list.
func (h *MeHandlers) issueActions(listing domain.Listing) *listingActionsPayload {
	actions := listingActionsPayload{}
	switch listing.Status {
	case domain.ListingStatusDraft, domain.ListingStatusPending:
		actions.Delete, _ = h.tokens.Issue(captoken.PurposeDeleteDraft, listing.ID)
	case domain.ListingStatusPublished:
		actions.Hide, _ = h.tokens.Issue(captoken.PurposeHide, listing.ID)
	case domain.ListingStatusHidden:
		actions.Republish, _ = h.tokens.Issue(captoken.PurposeRepublish, listing.ID)
	}
	if actions == (listingActionsPayload{}) {
		return nil
	}
	return &actions
}

func (h *MeHandlers) createDraft(w http.ResponseWriter, r *http.Request) {
	h.saveDraft(w, r, "")
}

func (h *MeHandlers) updateDraft(w http.ResponseWriter, r *http.Request) {
	h.saveDraft(w, r, chi.URLParam(r, "listingID"))
}

func (h *MeHandlers) saveDraft(w http.ResponseWriter, r *http.Request, listingID string) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxDraftBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req saveDraftRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	listing, err := h.drafts.SaveDraft(r.Context(), services.SaveDraftCommand{
		Actor:     actor,
		ListingID: listingID,
		Type:      domain.ListingType(strings.TrimSpace(req.Type)),
		Fields:    req.Fields,
	})
	if err != nil {
		writeDraftError(w, r, err)
		return
	}

	status := http.StatusOK
	if listingID == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, draftResponse{Listing: newListingPayload(listing)})
}

func (h *MeHandlers) deleteDraft(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	listingID := chi.URLParam(r, "listingID")
	if !h.verifyActionToken(w, r, captoken.PurposeDeleteDraft, listingID) {
		return
	}

	if err := h.drafts.DeleteDraft(r.Context(), services.DeleteDraftCommand{Actor: actor, ListingID: listingID}); err != nil {
		writeDraftError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, noticeResponse{
		Notice: i18n.Localize(r.Header.Get("Accept-Language"), i18n.NoticeDraftDeleted),
	})
}

func (h *MeHandlers) attachFile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAttachmentBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req attachFileRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	upload, err := h.drafts.AttachFile(r.Context(), services.AttachFileCommand{
		Actor:       actor,
		ListingID:   chi.URLParam(r, "listingID"),
		FileName:    req.FileName,
		ContentType: req.ContentType,
		ContentMD5:  req.ContentMD5,
		MaxSize:     req.MaxSize,
	})
	if err != nil {
		writeDraftError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, attachFileResponse{
		Path:      upload.Path,
		URL:       upload.URL,
		Method:    upload.Method,
		Headers:   upload.Headers,
		ExpiresAt: formatTime(upload.ExpiresAt),
	})
}

func (h *MeHandlers) initiateCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	cmd := services.InitiateCheckoutCommand{
		Actor:     actor,
		ListingID: chi.URLParam(r, "listingID"),
	}
	if identity, found := auth.IdentityFromContext(r.Context()); found && identity != nil {
		cmd.CustomerEmail = identity.Email
		cmd.Locale = identity.Locale
	}

	// The body is optional; callers may override email or locale.
	if body, err := readLimitedBody(r, maxCheckoutBodySize); err == nil {
		var req initiateCheckoutRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
			return
		}
		if v := strings.TrimSpace(req.CustomerEmail); v != "" {
			cmd.CustomerEmail = v
		}
		if v := strings.TrimSpace(req.Locale); v != "" {
			cmd.Locale = v
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBodyError(w, r, err)
		return
	}

	redirect, err := h.checkout.InitiateCheckout(r.Context(), cmd)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, initiateCheckoutResponse{
		OrderID:     redirect.OrderID,
		SessionID:   redirect.SessionID,
		RedirectURL: redirect.RedirectURL,
		Provider:    redirect.Provider,
		Amount:      redirect.Amount,
		Currency:    redirect.Currency,
		ExpiresAt:   formatTime(redirect.ExpiresAt),
	})
}

func (h *MeHandlers) hide(w http.ResponseWriter, r *http.Request) {
	h.toggleVisibility(w, r, captoken.PurposeHide)
}

func (h *MeHandlers) republish(w http.ResponseWriter, r *http.Request) {
	h.toggleVisibility(w, r, captoken.PurposeRepublish)
}

func (h *MeHandlers) toggleVisibility(w http.ResponseWriter, r *http.Request, purpose captoken.Purpose) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	listingID := chi.URLParam(r, "listingID")
	if !h.verifyActionToken(w, r, purpose, listingID) {
		return
	}

	cmd := services.VisibilityCommand{Actor: actor, ListingID: listingID}
	var (
		listing domain.Listing
		notice  i18n.Notice
		err     error
	)
	if purpose == captoken.PurposeHide {
		listing, err = h.visibility.Hide(r.Context(), cmd)
		notice = i18n.NoticeListingHidden
	} else {
		listing, err = h.visibility.Republish(r.Context(), cmd)
		notice = i18n.NoticeListingRepublished
	}
	if err != nil {
		writeVisibilityError(w, r, err)
		return
	}

	payload := newListingPayload(listing)
	writeJSONResponse(w, http.StatusOK, noticeResponse{
		Listing: &payload,
		Notice:  i18n.Localize(r.Header.Get("Accept-Language"), notice),
	})
}

// verifyActionToken checks the capability token carried in the token
// query parameter against the purpose and listing the route targets.
func (h *MeHandlers) verifyActionToken(w http.ResponseWriter, r *http.Request, purpose captoken.Purpose, listingID string) bool {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("action_token_required", "action token is required", http.StatusForbidden))
		return false
	}
	if err := h.tokens.Verify(token, purpose, listingID); err != nil {
		code := "invalid_action_token"
		message := "invalid action token"
		if errors.Is(err, captoken.ErrExpiredToken) {
			code = "expired_action_token"
			message = "action token expired"
		}
		httpx.WriteError(r.Context(), w, httpx.NewError(code, message, http.StatusForbidden))
		return false
	}
	return true
}

func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeDraftError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	acceptLanguage := r.Header.Get("Accept-Language")
	switch {
	case errors.Is(err, services.ErrDraftInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid draft payload", http.StatusBadRequest))
	case errors.Is(err, services.ErrDraftNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("listing_not_found", i18n.Localize(acceptLanguage, i18n.NoticeListingNotFound), http.StatusNotFound))
	case errors.Is(err, services.ErrDraftNotAuthorized):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", i18n.Localize(acceptLanguage, i18n.NoticeNotAuthorized), http.StatusForbidden))
	case errors.Is(err, services.ErrDraftNotEditable):
		httpx.WriteError(ctx, w, httpx.NewError("listing_not_editable", i18n.Localize(acceptLanguage, i18n.NoticeInvalidTransition), http.StatusConflict))
	case errors.Is(err, services.ErrDraftConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "listing was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrDraftUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "listing store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	acceptLanguage := r.Header.Get("Accept-Language")
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid checkout request", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutListingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("listing_not_found", i18n.Localize(acceptLanguage, i18n.NoticeListingNotFound), http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutNotAuthorized):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", i18n.Localize(acceptLanguage, i18n.NoticeNotAuthorized), http.StatusForbidden))
	case errors.Is(err, services.ErrCheckoutNotPayable):
		httpx.WriteError(ctx, w, httpx.NewError("listing_not_payable", i18n.Localize(acceptLanguage, i18n.NoticeInvalidTransition), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutProductNotConfigured):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_configured", "no product configured for this listing type", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment provider rejected the checkout", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "checkout temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func writeVisibilityError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	acceptLanguage := r.Header.Get("Accept-Language")
	switch {
	case errors.Is(err, services.ErrVisibilityInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid visibility request", http.StatusBadRequest))
	case errors.Is(err, services.ErrVisibilityListingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("listing_not_found", i18n.Localize(acceptLanguage, i18n.NoticeListingNotFound), http.StatusNotFound))
	case errors.Is(err, services.ErrVisibilityNotAuthorized):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", i18n.Localize(acceptLanguage, i18n.NoticeNotAuthorized), http.StatusForbidden))
	case errors.Is(err, services.ErrVisibilityPaymentRequired):
		httpx.WriteError(ctx, w, httpx.NewError("payment_required", i18n.Localize(acceptLanguage, i18n.NoticePaymentRequired), http.StatusPaymentRequired))
	case errors.Is(err, services.ErrVisibilityInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", i18n.Localize(acceptLanguage, i18n.NoticeInvalidTransition), http.StatusConflict))
	case errors.Is(err, services.ErrVisibilityConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "listing was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrVisibilityUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "listing store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
