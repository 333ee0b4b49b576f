package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bourseville/listings-api/internal/commerce"
	"github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/httpx"
	"github.com/bourseville/listings-api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// signalParser is the slice of commerce.Provider the webhook endpoint needs.
type signalParser interface {
	Name() string
	ParseSignal(payload []byte, signature string) (commerce.Signal, bool, error)
}

// WebhookHandlers receives asynchronous payment events from the
// commerce provider and funnels them into reconciliation.
type WebhookHandlers struct {
	provider   signalParser
	reconciler services.ReconcilerService
}

// WebhookHandlersDeps carries the collaborators WebhookHandlers requires.
type WebhookHandlersDeps struct {
	Provider   signalParser
	Reconciler services.ReconcilerService
}

// NewWebhookHandlers constructs the provider webhook handlers.
func NewWebhookHandlers(deps WebhookHandlersDeps) (*WebhookHandlers, error) {
	if deps.Provider == nil {
		return nil, errors.New("webhook handlers: provider is required")
	}
	if deps.Reconciler == nil {
		return nil, errors.New("webhook handlers: reconciler service is required")
	}
	return &WebhookHandlers{provider: deps.Provider, reconciler: deps.Reconciler}, nil
}

// Routes wires the webhook endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/"+h.provider.Name(), h.receive)
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// receive verifies and reconciles one webhook delivery. Processed
// deliveries always answer 200 regardless of outcome so the provider
// does not retry signals that were understood but achieved nothing new.
func (h *WebhookHandlers) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read webhook payload", http.StatusBadRequest))
		return
	}
	if int64(len(payload)) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	signal, ok, err := h.provider.ParseSignal(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}
	if !ok {
		writeJSONResponse(w, http.StatusOK, webhookResponse{Received: true})
		return
	}

	// Every verified checkout signal funnels into the same idempotent
	// reconcile, including completed sessions whose async payment is
	// still capturing; Paid only selects the audit label.
	source := domain.SignalSourceWebhookProcessing
	if signal.Paid {
		source = domain.SignalSourceWebhookPaid
	}

	result, err := h.reconciler.Reconcile(ctx, services.ReconcileCommand{
		OrderID:   signal.OrderID,
		SessionID: signal.SessionID,
		Source:    source,
	})
	if err != nil {
		// The provider retries on 5xx, which is what we want for
		// transient store failures.
		writeReconcileError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookResponse{Received: true, Outcome: string(result.Outcome)})
}
