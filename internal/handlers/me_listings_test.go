package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/captoken"
	"github.com/bourseville/listings-api/internal/services"
)

type meHandlerFixture struct {
	drafts     *stubDraftService
	checkout   *stubCheckoutService
	visibility *stubVisibilityService
	queries    *stubQueryService
	tokens     *captoken.Issuer
	router     chi.Router
}

func newMeFixture(t *testing.T) *meHandlerFixture {
	t.Helper()
	f := &meHandlerFixture{
		drafts:     &stubDraftService{},
		checkout:   &stubCheckoutService{},
		visibility: &stubVisibilityService{},
		queries:    &stubQueryService{},
		tokens:     newTestIssuer(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)),
	}
	h, err := NewMeHandlers(MeHandlersDeps{
		Drafts:     f.drafts,
		Checkout:   f.checkout,
		Visibility: f.visibility,
		Queries:    f.queries,
		Tokens:     f.tokens,
	})
	if err != nil {
		t.Fatalf("NewMeHandlers: %v", err)
	}
	f.router = chi.NewRouter()
	f.router.Route("/me", h.Routes)
	return f
}

func TestCreateDraft(t *testing.T) {
	f := newMeFixture(t)
	f.drafts.saveFn = func(_ context.Context, cmd services.SaveDraftCommand) (domain.Listing, error) {
		if cmd.Actor.ID != "user-1" || cmd.Actor.Admin {
			t.Fatalf("actor = %+v", cmd.Actor)
		}
		if cmd.ListingID != "" {
			t.Fatalf("listing id = %q, want empty on create", cmd.ListingID)
		}
		if cmd.Type != domain.ListingTypeShareIssue {
			t.Fatalf("type = %q", cmd.Type)
		}
		return domain.Listing{ID: "lst_new", OwnerID: cmd.Actor.ID, Type: cmd.Type, Status: domain.ListingStatusDraft}, nil
	}

	body := `{"type":"share_issue","fields":{"listing_title":"Spring issue"}}`
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/listings", strings.NewReader(body)), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var payload draftResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Listing.ID != "lst_new" || payload.Listing.Status != "draft" {
		t.Fatalf("unexpected listing: %+v", payload.Listing)
	}
}

func TestUpdateDraftPassesListingID(t *testing.T) {
	f := newMeFixture(t)
	f.drafts.saveFn = func(_ context.Context, cmd services.SaveDraftCommand) (domain.Listing, error) {
		if cmd.ListingID != "lst_1" {
			t.Fatalf("listing id = %q", cmd.ListingID)
		}
		return domain.Listing{ID: cmd.ListingID, Status: domain.ListingStatusDraft}, nil
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodPut, "/me/listings/lst_1", strings.NewReader(`{"fields":{"listing_title":"Updated"}}`)), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestSaveDraftRequiresAuthentication(t *testing.T) {
	f := newMeFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/me/listings", strings.NewReader(`{"type":"share_issue"}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestDeleteDraftRequiresActionToken(t *testing.T) {
	f := newMeFixture(t)
	req := withTestIdentity(httptest.NewRequest(http.MethodDelete, "/me/listings/lst_1", nil), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestDeleteDraftRejectsTokenForOtherListing(t *testing.T) {
	f := newMeFixture(t)
	token, err := f.tokens.Issue(captoken.PurposeDeleteDraft, "lst_other")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodDelete, "/me/listings/lst_1?token="+token, nil), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestDeleteDraftWithValidToken(t *testing.T) {
	f := newMeFixture(t)
	deleted := false
	f.drafts.deleteFn = func(_ context.Context, cmd services.DeleteDraftCommand) error {
		if cmd.ListingID != "lst_1" {
			t.Fatalf("listing id = %q", cmd.ListingID)
		}
		deleted = true
		return nil
	}

	token, err := f.tokens.Issue(captoken.PurposeDeleteDraft, "lst_1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodDelete, "/me/listings/lst_1?token="+token, nil), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !deleted {
		t.Fatal("DeleteDraft was not invoked")
	}
	var payload noticeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Notice != "Luonnos on poistettu." {
		t.Fatalf("notice = %q", payload.Notice)
	}
}

func TestHideListingLocalizesNotice(t *testing.T) {
	f := newMeFixture(t)
	f.visibility.hideFn = func(_ context.Context, cmd services.VisibilityCommand) (domain.Listing, error) {
		if cmd.ListingID != "lst_1" {
			t.Fatalf("listing id = %q", cmd.ListingID)
		}
		return domain.Listing{ID: cmd.ListingID, Status: domain.ListingStatusHidden}, nil
	}

	token, err := f.tokens.Issue(captoken.PurposeHide, "lst_1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/listings/lst_1/hide?token="+token, nil), "user-1")
	req.Header.Set("Accept-Language", "en-GB")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var payload noticeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Notice != "The listing has been hidden." {
		t.Fatalf("notice = %q", payload.Notice)
	}
	if payload.Listing == nil || payload.Listing.Status != "hidden" {
		t.Fatalf("listing payload = %+v", payload.Listing)
	}
}

func TestRepublishPaymentRequired(t *testing.T) {
	f := newMeFixture(t)
	f.visibility.republishFn = func(context.Context, services.VisibilityCommand) (domain.Listing, error) {
		return domain.Listing{}, services.ErrVisibilityPaymentRequired
	}

	token, err := f.tokens.Issue(captoken.PurposeRepublish, "lst_1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/listings/lst_1/republish?token="+token, nil), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
}

func TestListOwnedIssuesActionTokens(t *testing.T) {
	f := newMeFixture(t)
	f.queries.listOwnedFn = func(_ context.Context, query services.OwnedQuery) (domain.ListingPage, error) {
		if query.Actor.ID != "user-1" {
			t.Fatalf("actor = %+v", query.Actor)
		}
		return domain.ListingPage{Items: []domain.Listing{
			{ID: "lst_draft", Status: domain.ListingStatusDraft},
			{ID: "lst_pub", Status: domain.ListingStatusPublished},
			{ID: "lst_hidden", Status: domain.ListingStatusHidden},
		}}, nil
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/me/listings", nil), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var payload ownedListingPagePayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(payload.Items))
	}

	draft, published, hidden := payload.Items[0], payload.Items[1], payload.Items[2]
	if draft.Actions == nil || draft.Actions.Delete == "" {
		t.Fatal("draft item is missing a delete token")
	}
	if err := f.tokens.Verify(draft.Actions.Delete, captoken.PurposeDeleteDraft, "lst_draft"); err != nil {
		t.Fatalf("verify delete token: %v", err)
	}
	if published.Actions == nil || published.Actions.Hide == "" {
		t.Fatal("published item is missing a hide token")
	}
	if hidden.Actions == nil || hidden.Actions.Republish == "" {
		t.Fatal("hidden item is missing a republish token")
	}
}

func TestListOwnedIgnoresOwnerOverrideForNonAdmins(t *testing.T) {
	f := newMeFixture(t)
	f.queries.listOwnedFn = func(_ context.Context, query services.OwnedQuery) (domain.ListingPage, error) {
		if query.OwnerID != "" {
			t.Fatalf("owner override leaked for non-admin: %q", query.OwnerID)
		}
		return domain.ListingPage{}, nil
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/me/listings?ownerId=victim", nil), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestInitiateCheckoutDefaultsToIdentityEmail(t *testing.T) {
	f := newMeFixture(t)
	f.checkout.initiateFn = func(_ context.Context, cmd services.InitiateCheckoutCommand) (services.CheckoutRedirect, error) {
		if cmd.ListingID != "lst_1" {
			t.Fatalf("listing id = %q", cmd.ListingID)
		}
		if cmd.CustomerEmail != "user-1@example.com" {
			t.Fatalf("customer email = %q", cmd.CustomerEmail)
		}
		return services.CheckoutRedirect{
			OrderID:     "ord_1",
			SessionID:   "cs_123",
			RedirectURL: "https://pay.example.com/cs_123",
			Provider:    "stripe",
			Amount:      14900,
			Currency:    "eur",
		}, nil
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/listings/lst_1/checkout", nil), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var payload initiateCheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.OrderID != "ord_1" || payload.RedirectURL != "https://pay.example.com/cs_123" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestInitiateCheckoutNotPayable(t *testing.T) {
	f := newMeFixture(t)
	f.checkout.initiateFn = func(context.Context, services.InitiateCheckoutCommand) (services.CheckoutRedirect, error) {
		return services.CheckoutRedirect{}, services.ErrCheckoutNotPayable
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/listings/lst_1/checkout", nil), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestAttachFileReturnsSignedUpload(t *testing.T) {
	f := newMeFixture(t)
	expires := time.Date(2026, time.March, 10, 12, 30, 0, 0, time.UTC)
	f.drafts.attachFn = func(_ context.Context, cmd services.AttachFileCommand) (services.AttachmentUpload, error) {
		if cmd.FileName != "deck.pdf" || cmd.ContentType != "application/pdf" {
			t.Fatalf("unexpected command: %+v", cmd)
		}
		return services.AttachmentUpload{
			Path:      "listings/lst_1/attachments/marketing_material_file/deck.pdf",
			URL:       "https://storage.example.com/signed",
			Method:    http.MethodPut,
			Headers:   map[string]string{"Content-Type": "application/pdf"},
			ExpiresAt: expires,
		}, nil
	}

	body := `{"fileName":"deck.pdf","contentType":"application/pdf"}`
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/listings/lst_1/attachment", strings.NewReader(body)), "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var payload attachFileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Method != http.MethodPut || payload.URL == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
