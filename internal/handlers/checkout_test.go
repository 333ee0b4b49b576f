package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/services"
)

func newCheckoutRouter(t *testing.T, reconciler services.ReconcilerService, limiter rateLimiter) chi.Router {
	t.Helper()
	h, err := NewCheckoutHandlers(CheckoutHandlersDeps{Reconciler: reconciler, Limiter: limiter})
	if err != nil {
		t.Fatalf("NewCheckoutHandlers: %v", err)
	}
	r := chi.NewRouter()
	r.Route("/checkout", h.Routes)
	return r
}

func TestThankYouReconcilesAndLocalizes(t *testing.T) {
	var captured services.ReconcileCommand
	reconciler := &stubReconcilerService{
		reconcileFn: func(_ context.Context, cmd services.ReconcileCommand) (services.ReconcileResult, error) {
			captured = cmd
			return services.ReconcileResult{
				Outcome:   domain.ReconcileOutcomePublished,
				OrderID:   cmd.OrderID,
				ListingID: "lst_1",
			}, nil
		},
	}

	router := newCheckoutRouter(t, reconciler, nil)
	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/checkout/thank-you?order_id=ord_1", nil), "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Source != domain.SignalSourceThankYou {
		t.Fatalf("unexpected command: %+v", captured)
	}

	var payload thankYouResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Outcome != "published" || payload.ListingID != "lst_1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Notice != "Ilmoitus on julkaistu." {
		t.Fatalf("notice = %q", payload.Notice)
	}
}

func TestThankYouAcceptsSessionReference(t *testing.T) {
	reconciler := &stubReconcilerService{
		reconcileFn: func(_ context.Context, cmd services.ReconcileCommand) (services.ReconcileResult, error) {
			if cmd.SessionID != "cs_123" || cmd.OrderID != "" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			return services.ReconcileResult{Outcome: domain.ReconcileOutcomeAlreadyPublished, OrderID: "ord_1"}, nil
		},
	}

	router := newCheckoutRouter(t, reconciler, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkout/thank-you?session_id=cs_123", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestThankYouRequiresReference(t *testing.T) {
	router := newCheckoutRouter(t, &stubReconcilerService{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkout/thank-you", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestThankYouUnknownOrder(t *testing.T) {
	reconciler := &stubReconcilerService{
		reconcileFn: func(context.Context, services.ReconcileCommand) (services.ReconcileResult, error) {
			return services.ReconcileResult{Outcome: domain.ReconcileOutcomeOrderMissing}, nil
		},
	}

	router := newCheckoutRouter(t, reconciler, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkout/thank-you?order_id=ord_missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestThankYouRateLimits(t *testing.T) {
	reconciler := &stubReconcilerService{
		reconcileFn: func(context.Context, services.ReconcileCommand) (services.ReconcileResult, error) {
			return services.ReconcileResult{Outcome: domain.ReconcileOutcomeAlreadyPublished}, nil
		},
	}
	limiter := newSimpleRateLimiter(1, time.Minute, nil)

	router := newCheckoutRouter(t, reconciler, limiter)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/checkout/thank-you?order_id=ord_1", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/checkout/thank-you?order_id=ord_1", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
}
