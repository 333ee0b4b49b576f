package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bourseville/listings-api/internal/domain"
)

func TestHealthzReportsUptime(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(WithHealthClock(func() time.Time { return now }))

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("status field = %v", payload["status"])
	}
}

func TestReadyzReportsChecks(t *testing.T) {
	generated := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	system := &stubSystemService{
		healthFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusDegraded, Error: "deadline exceeded", Latency: 1200 * time.Millisecond},
				},
				GeneratedAt: generated,
			}, nil
		},
	}
	h := NewHealthHandlers(WithHealthSystemService(system))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for degraded", rec.Code)
	}
	var payload readinessPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "degraded" {
		t.Fatalf("status = %q", payload.Status)
	}
	check, ok := payload.Checks["firestore"]
	if !ok || check.Error != "deadline exceeded" {
		t.Fatalf("checks = %+v", payload.Checks)
	}
}

func TestReadyzAnswers503OnErrorStatus(t *testing.T) {
	system := &stubSystemService{
		healthFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{Status: domain.HealthStatusError}, nil
		},
	}
	h := NewHealthHandlers(WithHealthSystemService(system))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReadyzAnswers503OnCollectFailure(t *testing.T) {
	system := &stubSystemService{
		healthFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{}, errors.New("collect failed")
		},
	}
	h := NewHealthHandlers(WithHealthSystemService(system))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReadyzWithoutSystemService(t *testing.T) {
	h := NewHealthHandlers()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
