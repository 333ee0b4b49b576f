package services

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/storage"
	"github.com/bourseville/listings-api/internal/platform/textutil"
	"github.com/bourseville/listings-api/internal/repositories"
)

const (
	listingIDPrefix      = "lst_"
	maxTitleLength       = 200
	defaultUploadURLTTL  = 15 * time.Minute
	defaultAttachmentCap = 25 << 20
)

var (
	// ErrDraftInvalidInput indicates the caller supplied invalid input parameters.
	ErrDraftInvalidInput = errors.New("draft: invalid input")
	// ErrDraftNotFound indicates the listing does not exist or is deleted.
	ErrDraftNotFound = errors.New("draft: listing not found")
	// ErrDraftNotAuthorized indicates the actor may not manage the listing.
	ErrDraftNotAuthorized = errors.New("draft: not authorized")
	// ErrDraftNotEditable indicates the listing is past its editable states.
	ErrDraftNotEditable = errors.New("draft: listing not editable")
	// ErrDraftConflict indicates a concurrent modification was detected.
	ErrDraftConflict = errors.New("draft: conflict")
	// ErrDraftUnavailable indicates draft dependencies are currently unavailable.
	ErrDraftUnavailable = errors.New("draft: unavailable")
)

// attachmentSigner abstracts the storage client for easier testing.
type attachmentSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error)
}

// DraftServiceDeps wires the dependencies required by the draft service.
type DraftServiceDeps struct {
	Listings          repositories.ListingRepository
	Storage           attachmentSigner
	AttachmentsBucket string
	UploadURLTTL      time.Duration
	IDGenerator       func() string
	Clock             func() time.Time
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type draftService struct {
	listings  repositories.ListingRepository
	storage   attachmentSigner
	bucket    string
	uploadTTL time.Duration
	newID     func() string
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
	sanitizer *bluemonday.Policy
}

// NewDraftService constructs a DraftService validating required dependencies.
func NewDraftService(deps DraftServiceDeps) (DraftService, error) {
	if deps.Listings == nil {
		return nil, errors.New("draft service: listing repository is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return listingIDPrefix + ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.UploadURLTTL
	if ttl <= 0 {
		ttl = defaultUploadURLTTL
	}

	return &draftService{
		listings:  deps.Listings,
		storage:   deps.Storage,
		bucket:    strings.TrimSpace(deps.AttachmentsBucket),
		uploadTTL: ttl,
		newID:     idGen,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// SaveDraft creates the draft on first call and upserts the posted
// fields on later calls. Autosave is the live-editing path: only the
// owner writes here, and a listing that drifted out of draft status is
// pulled back to draft.
func (s *draftService) SaveDraft(ctx context.Context, cmd SaveDraftCommand) (Listing, error) {
	if s == nil || s.listings == nil {
		return Listing{}, ErrDraftUnavailable
	}
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return Listing{}, ErrDraftInvalidInput
	}

	if strings.TrimSpace(cmd.ListingID) == "" {
		return s.createDraft(ctx, cmd)
	}
	return s.updateDraft(ctx, cmd)
}

func (s *draftService) createDraft(ctx context.Context, cmd SaveDraftCommand) (Listing, error) {
	// The type may arrive on a later save; an untyped draft is valid.
	if cmd.Type != "" && !cmd.Type.Valid() {
		return Listing{}, ErrDraftInvalidInput
	}

	now := s.now()
	fields := mergeFields(nil, cmd.Fields)
	listing := domain.Listing{
		ID:        s.newID(),
		OwnerID:   strings.TrimSpace(cmd.Actor.ID),
		Type:      cmd.Type,
		Status:    domain.ListingStatusDraft,
		Title:     s.deriveTitle(fields),
		Category:  domain.CategoryForType(cmd.Type),
		Fields:    fields,
		CreatedAt: now,
		UpdatedAt: now,
	}

	saved, err := s.listings.Create(ctx, listing)
	if err != nil {
		return Listing{}, s.translateError(err)
	}

	s.logger(ctx, "draft.created", map[string]any{
		"listingId": saved.ID,
		"ownerId":   saved.OwnerID,
		"type":      string(saved.Type),
	})
	return saved, nil
}

func (s *draftService) updateDraft(ctx context.Context, cmd SaveDraftCommand) (Listing, error) {
	listing, err := s.listings.Get(ctx, strings.TrimSpace(cmd.ListingID))
	if err != nil {
		return Listing{}, s.translateError(err)
	}
	// Autosave writes the owner's own record only. Admin rights do not
	// extend to the live-editing path.
	if strings.TrimSpace(listing.OwnerID) != strings.TrimSpace(cmd.Actor.ID) {
		return Listing{}, ErrDraftNotAuthorized
	}
	if cmd.Type != "" {
		if !cmd.Type.Valid() {
			return Listing{}, ErrDraftInvalidInput
		}
		listing.Type = cmd.Type
	}

	expectedUpdate := listing.UpdatedAt
	// Autosave only ever produces drafts; anything that drifted past
	// draft is pulled back.
	listing.Status = domain.ListingStatusDraft
	listing.Fields = mergeFields(listing.Fields, cmd.Fields)
	if title := s.deriveTitle(listing.Fields); title != "" {
		listing.Title = title
	}
	listing.Category = domain.CategoryForType(listing.Type)
	listing.UpdatedAt = s.now()

	saved, err := s.listings.Update(ctx, listing, &expectedUpdate)
	if err != nil {
		return Listing{}, s.translateError(err)
	}
	return saved, nil
}

// DeleteDraft soft-deletes a draft that never reached publication.
func (s *draftService) DeleteDraft(ctx context.Context, cmd DeleteDraftCommand) error {
	if s == nil || s.listings == nil {
		return ErrDraftUnavailable
	}
	listingID := strings.TrimSpace(cmd.ListingID)
	if strings.TrimSpace(cmd.Actor.ID) == "" || listingID == "" {
		return ErrDraftInvalidInput
	}

	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return s.translateError(err)
	}
	if !canManage(cmd.Actor, listing) {
		return ErrDraftNotAuthorized
	}
	if listing.Status != domain.ListingStatusDraft {
		return ErrDraftNotEditable
	}

	if err := s.listings.SoftDelete(ctx, listingID, s.now()); err != nil {
		return s.translateError(err)
	}

	s.logger(ctx, "draft.deleted", map[string]any{
		"listingId": listingID,
		"ownerId":   listing.OwnerID,
	})
	return nil
}

// AttachFile issues a signed upload slot for the type's marketing
// material file and records the object path on the listing.
func (s *draftService) AttachFile(ctx context.Context, cmd AttachFileCommand) (AttachmentUpload, error) {
	if s == nil || s.listings == nil {
		return AttachmentUpload{}, ErrDraftUnavailable
	}
	if s.storage == nil || s.bucket == "" {
		return AttachmentUpload{}, ErrDraftUnavailable
	}
	listingID := strings.TrimSpace(cmd.ListingID)
	if strings.TrimSpace(cmd.Actor.ID) == "" || listingID == "" {
		return AttachmentUpload{}, ErrDraftInvalidInput
	}
	fileName := strings.TrimSpace(cmd.FileName)
	contentType := strings.TrimSpace(cmd.ContentType)
	if fileName == "" || contentType == "" {
		return AttachmentUpload{}, ErrDraftInvalidInput
	}

	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return AttachmentUpload{}, s.translateError(err)
	}
	if !canManage(cmd.Actor, listing) {
		return AttachmentUpload{}, ErrDraftNotAuthorized
	}
	if !listing.Editable() {
		return AttachmentUpload{}, ErrDraftNotEditable
	}

	schema, ok := domain.SchemaForType(listing.Type)
	if !ok || schema.AttachmentField == "" {
		return AttachmentUpload{}, ErrDraftInvalidInput
	}

	path, err := storage.BuildAttachmentPath(storage.AttachmentPathParams{
		ListingID: listing.ID,
		Field:     schema.AttachmentField,
		FileName:  fileName,
	})
	if err != nil {
		return AttachmentUpload{}, ErrDraftInvalidInput
	}

	maxSize := cmd.MaxSize
	if maxSize <= 0 || maxSize > defaultAttachmentCap {
		maxSize = defaultAttachmentCap
	}

	signed, err := s.storage.SignedURL(ctx, s.bucket, path, storage.SignedURLOptions{
		Upload: &storage.UploadOptions{
			Method:      "PUT",
			ContentType: contentType,
			ContentMD5:  strings.TrimSpace(cmd.ContentMD5),
			MaxSize:     maxSize,
			ExpiresIn:   s.uploadTTL,
		},
	})
	if err != nil {
		s.logger(ctx, "draft.attach_sign_failed", map[string]any{
			"listingId": listing.ID,
			"error":     err.Error(),
		})
		return AttachmentUpload{}, ErrDraftUnavailable
	}

	expectedUpdate := listing.UpdatedAt
	listing.AttachmentPath = path
	listing.UpdatedAt = s.now()
	if _, err := s.listings.Update(ctx, listing, &expectedUpdate); err != nil {
		return AttachmentUpload{}, s.translateError(err)
	}

	return AttachmentUpload{
		Path:      path,
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

func (s *draftService) deriveTitle(fields map[string]string) string {
	raw := fields[domain.TitleFieldName]
	title := html.UnescapeString(s.sanitizer.Sanitize(raw))
	title = strings.Join(strings.Fields(title), " ")
	if len(title) > maxTitleLength {
		title = strings.TrimSpace(title[:maxTitleLength])
	}
	return title
}

func (s *draftService) translateError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrDraftNotFound
		case repoErr.IsConflict():
			return ErrDraftConflict
		default:
			return ErrDraftUnavailable
		}
	}
	return ErrDraftUnavailable
}

// mergeFields upserts each posted key into the stored field map. An
// empty value clears the key. Keys are not checked against the form
// schema here; the form layer owns that.
func mergeFields(existing, updates map[string]string) map[string]string {
	normalized := textutil.NormalizeStringMap(updates)
	if len(normalized) == 0 {
		return existing
	}
	merged := make(map[string]string, len(existing)+len(normalized))
	for key, value := range existing {
		merged[key] = value
	}
	for key, value := range normalized {
		if value == "" {
			delete(merged, key)
			continue
		}
		merged[key] = value
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}
