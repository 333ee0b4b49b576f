package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/services"
)

func newInternalRouter(t *testing.T, reconciler services.ReconcilerService) chi.Router {
	t.Helper()
	h, err := NewInternalHandlers(reconciler)
	if err != nil {
		t.Fatalf("NewInternalHandlers: %v", err)
	}
	r := chi.NewRouter()
	r.Route("/internal", h.Routes)
	return r
}

func TestPushOrderStatusReconciles(t *testing.T) {
	var captured services.ReconcileCommand
	reconciler := &stubReconcilerService{
		reconcileFn: func(_ context.Context, cmd services.ReconcileCommand) (services.ReconcileResult, error) {
			captured = cmd
			return services.ReconcileResult{Outcome: domain.ReconcileOutcomePublished, OrderID: cmd.OrderID, ListingID: "lst_1"}, nil
		},
	}

	router := newInternalRouter(t, reconciler)
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_1/status", strings.NewReader(`{"status":"paid"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Source != domain.SignalSourceInternal {
		t.Fatalf("unexpected command: %+v", captured)
	}

	var payload pushOrderStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Outcome != "published" || payload.ListingID != "lst_1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestPushOrderStatusRejectsNonPaid(t *testing.T) {
	router := newInternalRouter(t, &stubReconcilerService{})
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_1/status", strings.NewReader(`{"status":"failed"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPushOrderStatusUnknownOrder(t *testing.T) {
	reconciler := &stubReconcilerService{
		reconcileFn: func(context.Context, services.ReconcileCommand) (services.ReconcileResult, error) {
			return services.ReconcileResult{Outcome: domain.ReconcileOutcomeOrderMissing}, nil
		},
	}

	router := newInternalRouter(t, reconciler)
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_missing/status", strings.NewReader(`{"status":"paid"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPushOrderStatusRequiresBody(t *testing.T) {
	router := newInternalRouter(t, &stubReconcilerService{})
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
