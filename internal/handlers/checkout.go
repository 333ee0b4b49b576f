package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/auth"
	"github.com/bourseville/listings-api/internal/platform/httpx"
	"github.com/bourseville/listings-api/internal/platform/i18n"
	"github.com/bourseville/listings-api/internal/services"
)

const (
	thankYouRateLimit  = 30
	thankYouRateWindow = time.Minute
)

// CheckoutHandlers serves the provider return endpoints. The thank-you
// landing doubles as a payment-confirmation delivery so a user returning
// from checkout sees their listing published even when the webhook has
// not arrived yet.
type CheckoutHandlers struct {
	authn      *auth.Authenticator
	reconciler services.ReconcilerService
	limiter    rateLimiter
}

// CheckoutHandlersDeps carries the collaborators CheckoutHandlers requires.
type CheckoutHandlersDeps struct {
	Authenticator *auth.Authenticator
	Reconciler    services.ReconcilerService
	Limiter       rateLimiter
}

// NewCheckoutHandlers constructs the checkout return handlers.
func NewCheckoutHandlers(deps CheckoutHandlersDeps) (*CheckoutHandlers, error) {
	if deps.Reconciler == nil {
		return nil, errors.New("checkout handlers: reconciler service is required")
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = newSimpleRateLimiter(thankYouRateLimit, thankYouRateWindow, nil)
	}
	return &CheckoutHandlers{
		authn:      deps.Authenticator,
		reconciler: deps.Reconciler,
		limiter:    limiter,
	}, nil
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/thank-you", h.thankYou)
}

type thankYouResponse struct {
	Outcome   string `json:"outcome"`
	OrderID   string `json:"orderId,omitempty"`
	ListingID string `json:"listingId,omitempty"`
	Notice    string `json:"notice,omitempty"`
}

func (h *CheckoutHandlers) thankYou(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
		return
	}

	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if orderID == "" && sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id or session_id is required", http.StatusBadRequest))
		return
	}

	result, err := h.reconciler.Reconcile(ctx, services.ReconcileCommand{
		OrderID:   orderID,
		SessionID: sessionID,
		Source:    domain.SignalSourceThankYou,
	})
	if err != nil {
		writeReconcileError(w, r, err)
		return
	}

	payload := thankYouResponse{
		Outcome:   string(result.Outcome),
		OrderID:   result.OrderID,
		ListingID: result.ListingID,
	}
	switch result.Outcome {
	case domain.ReconcileOutcomePublished, domain.ReconcileOutcomeAlreadyPublished:
		payload.Notice = i18n.Localize(r.Header.Get("Accept-Language"), i18n.NoticeListingPublished)
	case domain.ReconcileOutcomeOrderMissing:
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

func writeReconcileError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrReconcileInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid confirmation signal", http.StatusBadRequest))
	case errors.Is(err, services.ErrReconcileUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "listing store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
