package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bourseville/listings-api/internal/commerce"
	"github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/auth"
	"github.com/bourseville/listings-api/internal/platform/captoken"
	"github.com/bourseville/listings-api/internal/services"
)

type stubDraftService struct {
	saveFn   func(ctx context.Context, cmd services.SaveDraftCommand) (domain.Listing, error)
	deleteFn func(ctx context.Context, cmd services.DeleteDraftCommand) error
	attachFn func(ctx context.Context, cmd services.AttachFileCommand) (services.AttachmentUpload, error)
}

func (s *stubDraftService) SaveDraft(ctx context.Context, cmd services.SaveDraftCommand) (domain.Listing, error) {
	if s.saveFn == nil {
		return domain.Listing{}, errors.New("unexpected SaveDraft call")
	}
	return s.saveFn(ctx, cmd)
}

func (s *stubDraftService) DeleteDraft(ctx context.Context, cmd services.DeleteDraftCommand) error {
	if s.deleteFn == nil {
		return errors.New("unexpected DeleteDraft call")
	}
	return s.deleteFn(ctx, cmd)
}

func (s *stubDraftService) AttachFile(ctx context.Context, cmd services.AttachFileCommand) (services.AttachmentUpload, error) {
	if s.attachFn == nil {
		return services.AttachmentUpload{}, errors.New("unexpected AttachFile call")
	}
	return s.attachFn(ctx, cmd)
}

type stubCheckoutService struct {
	initiateFn func(ctx context.Context, cmd services.InitiateCheckoutCommand) (services.CheckoutRedirect, error)
}

func (s *stubCheckoutService) InitiateCheckout(ctx context.Context, cmd services.InitiateCheckoutCommand) (services.CheckoutRedirect, error) {
	if s.initiateFn == nil {
		return services.CheckoutRedirect{}, errors.New("unexpected InitiateCheckout call")
	}
	return s.initiateFn(ctx, cmd)
}

type stubReconcilerService struct {
	reconcileFn func(ctx context.Context, cmd services.ReconcileCommand) (services.ReconcileResult, error)
}

func (s *stubReconcilerService) Reconcile(ctx context.Context, cmd services.ReconcileCommand) (services.ReconcileResult, error) {
	if s.reconcileFn == nil {
		return services.ReconcileResult{}, errors.New("unexpected Reconcile call")
	}
	return s.reconcileFn(ctx, cmd)
}

type stubVisibilityService struct {
	hideFn      func(ctx context.Context, cmd services.VisibilityCommand) (domain.Listing, error)
	republishFn func(ctx context.Context, cmd services.VisibilityCommand) (domain.Listing, error)
}

func (s *stubVisibilityService) Hide(ctx context.Context, cmd services.VisibilityCommand) (domain.Listing, error) {
	if s.hideFn == nil {
		return domain.Listing{}, errors.New("unexpected Hide call")
	}
	return s.hideFn(ctx, cmd)
}

func (s *stubVisibilityService) Republish(ctx context.Context, cmd services.VisibilityCommand) (domain.Listing, error) {
	if s.republishFn == nil {
		return domain.Listing{}, errors.New("unexpected Republish call")
	}
	return s.republishFn(ctx, cmd)
}

type stubQueryService struct {
	getFn           func(ctx context.Context, cmd services.GetListingCommand) (domain.Listing, error)
	listPublishedFn func(ctx context.Context, query services.PublishedQuery) (domain.ListingPage, error)
	listOwnedFn     func(ctx context.Context, query services.OwnedQuery) (domain.ListingPage, error)
}

func (s *stubQueryService) GetListing(ctx context.Context, cmd services.GetListingCommand) (domain.Listing, error) {
	if s.getFn == nil {
		return domain.Listing{}, errors.New("unexpected GetListing call")
	}
	return s.getFn(ctx, cmd)
}

func (s *stubQueryService) ListPublished(ctx context.Context, query services.PublishedQuery) (domain.ListingPage, error) {
	if s.listPublishedFn == nil {
		return domain.ListingPage{}, errors.New("unexpected ListPublished call")
	}
	return s.listPublishedFn(ctx, query)
}

func (s *stubQueryService) ListOwned(ctx context.Context, query services.OwnedQuery) (domain.ListingPage, error) {
	if s.listOwnedFn == nil {
		return domain.ListingPage{}, errors.New("unexpected ListOwned call")
	}
	return s.listOwnedFn(ctx, query)
}

type stubSystemService struct {
	healthFn func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubSystemService) Health(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.healthFn == nil {
		return domain.SystemHealthReport{}, errors.New("unexpected Health call")
	}
	return s.healthFn(ctx)
}

type stubSignalParser struct {
	name    string
	signal  commerce.Signal
	ok      bool
	err     error
	parsed  [][]byte
	headers []string
}

func (s *stubSignalParser) Name() string {
	if s.name == "" {
		return "stripe"
	}
	return s.name
}

func (s *stubSignalParser) ParseSignal(payload []byte, signature string) (commerce.Signal, bool, error) {
	s.parsed = append(s.parsed, payload)
	s.headers = append(s.headers, signature)
	return s.signal, s.ok, s.err
}

func newTestIssuer(now time.Time) *captoken.Issuer {
	issuer, err := captoken.NewIssuer(captoken.Config{
		Secret: "test-secret",
		TTL:    time.Hour,
		Now:    func() time.Time { return now },
	})
	if err != nil {
		panic(err)
	}
	return issuer
}

func withTestIdentity(r *http.Request, uid string, roles ...string) *http.Request {
	identity := &auth.Identity{UID: uid, Email: uid + "@example.com", Roles: roles}
	return r.WithContext(auth.WithIdentity(r.Context(), identity))
}

var (
	_ services.DraftService        = (*stubDraftService)(nil)
	_ services.CheckoutService     = (*stubCheckoutService)(nil)
	_ services.ReconcilerService   = (*stubReconcilerService)(nil)
	_ services.VisibilityService   = (*stubVisibilityService)(nil)
	_ services.ListingQueryService = (*stubQueryService)(nil)
	_ services.SystemService       = (*stubSystemService)(nil)
	_ signalParser                 = (*stubSignalParser)(nil)
)
