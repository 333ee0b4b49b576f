package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/httpx"
	"github.com/bourseville/listings-api/internal/services"
)

const maxInternalBodySize = 8 * 1024

// InternalHandlers exposes the operator-facing endpoints. The router
// guards the group with OIDC service-account authentication.
type InternalHandlers struct {
	reconciler services.ReconcilerService
}

// NewInternalHandlers constructs the internal operator handlers.
func NewInternalHandlers(reconciler services.ReconcilerService) (*InternalHandlers, error) {
	if reconciler == nil {
		return nil, errors.New("internal handlers: reconciler service is required")
	}
	return &InternalHandlers{reconciler: reconciler}, nil
}

// Routes wires the internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderID}/status", h.pushOrderStatus)
}

type pushOrderStatusRequest struct {
	Status string `json:"status"`
}

type pushOrderStatusResponse struct {
	Outcome   string `json:"outcome"`
	OrderID   string `json:"orderId,omitempty"`
	ListingID string `json:"listingId,omitempty"`
}

// pushOrderStatus lets an operator replay a missed payment confirmation
// for an order. Only a paid push triggers reconciliation.
func (h *InternalHandlers) pushOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxInternalBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req pushOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}
	if status := domain.OrderStatus(strings.TrimSpace(req.Status)); status != domain.OrderStatusPaid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "only a paid status push is supported", http.StatusBadRequest))
		return
	}

	result, err := h.reconciler.Reconcile(ctx, services.ReconcileCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Source:  domain.SignalSourceInternal,
	})
	if err != nil {
		writeReconcileError(w, r, err)
		return
	}

	if result.Outcome == domain.ReconcileOutcomeOrderMissing {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, pushOrderStatusResponse{
		Outcome:   string(result.Outcome),
		OrderID:   result.OrderID,
		ListingID: result.ListingID,
	})
}
