package services

import (
	"context"
	"errors"
	"time"

	"github.com/bourseville/listings-api/internal/commerce"
	domain "github.com/bourseville/listings-api/internal/domain"
	"github.com/bourseville/listings-api/internal/platform/events"
	"github.com/bourseville/listings-api/internal/platform/storage"
	"github.com/bourseville/listings-api/internal/repositories"
)

// repoError is a configurable repositories.RepositoryError for tests.
type repoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoError) Error() string       { return "repo error" }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return e.unavailable }

var _ repositories.RepositoryError = (*repoError)(nil)

type stubListingRepository struct {
	getFn        func(ctx context.Context, id string) (domain.Listing, error)
	createFn     func(ctx context.Context, listing domain.Listing) (domain.Listing, error)
	updateFn     func(ctx context.Context, listing domain.Listing, expectedUpdate *time.Time) (domain.Listing, error)
	softDeleteFn func(ctx context.Context, id string, at time.Time) error
	listFn       func(ctx context.Context, filter repositories.ListingFilter) (repositories.ListingPage, error)
	lastUpdateFn func(ctx context.Context, id string) (time.Time, error)
}

func (s *stubListingRepository) Get(ctx context.Context, id string) (domain.Listing, error) {
	if s.getFn == nil {
		return domain.Listing{}, errors.New("unexpected Get call")
	}
	return s.getFn(ctx, id)
}

func (s *stubListingRepository) Create(ctx context.Context, listing domain.Listing) (domain.Listing, error) {
	if s.createFn == nil {
		return domain.Listing{}, errors.New("unexpected Create call")
	}
	return s.createFn(ctx, listing)
}

func (s *stubListingRepository) Update(ctx context.Context, listing domain.Listing, expectedUpdate *time.Time) (domain.Listing, error) {
	if s.updateFn == nil {
		return domain.Listing{}, errors.New("unexpected Update call")
	}
	return s.updateFn(ctx, listing, expectedUpdate)
}

func (s *stubListingRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if s.softDeleteFn == nil {
		return errors.New("unexpected SoftDelete call")
	}
	return s.softDeleteFn(ctx, id, at)
}

func (s *stubListingRepository) List(ctx context.Context, filter repositories.ListingFilter) (repositories.ListingPage, error) {
	if s.listFn == nil {
		return repositories.ListingPage{}, errors.New("unexpected List call")
	}
	return s.listFn(ctx, filter)
}

func (s *stubListingRepository) LastUpdateTime(ctx context.Context, id string) (time.Time, error) {
	if s.lastUpdateFn == nil {
		return time.Time{}, errors.New("unexpected LastUpdateTime call")
	}
	return s.lastUpdateFn(ctx, id)
}

var _ repositories.ListingRepository = (*stubListingRepository)(nil)

type stubOrderRepository struct {
	getFn          func(ctx context.Context, id string) (domain.PaymentOrder, error)
	getBySessionFn func(ctx context.Context, sessionID string) (domain.PaymentOrder, error)
	createFn       func(ctx context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error)
	updateFn       func(ctx context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error)
}

func (s *stubOrderRepository) Get(ctx context.Context, id string) (domain.PaymentOrder, error) {
	if s.getFn == nil {
		return domain.PaymentOrder{}, errors.New("unexpected Get call")
	}
	return s.getFn(ctx, id)
}

func (s *stubOrderRepository) GetBySession(ctx context.Context, sessionID string) (domain.PaymentOrder, error) {
	if s.getBySessionFn == nil {
		return domain.PaymentOrder{}, errors.New("unexpected GetBySession call")
	}
	return s.getBySessionFn(ctx, sessionID)
}

func (s *stubOrderRepository) Create(ctx context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error) {
	if s.createFn == nil {
		return domain.PaymentOrder{}, errors.New("unexpected Create call")
	}
	return s.createFn(ctx, order)
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error) {
	if s.updateFn == nil {
		return domain.PaymentOrder{}, errors.New("unexpected Update call")
	}
	return s.updateFn(ctx, order)
}

var _ repositories.PaymentOrderRepository = (*stubOrderRepository)(nil)

// memorySlotStore is an in-test session slot store.
type memorySlotStore struct {
	values map[string]string
	puts   int
	clears int
	getErr error
	putErr error
}

func newMemorySlotStore() *memorySlotStore {
	return &memorySlotStore{values: map[string]string{}}
}

func (s *memorySlotStore) Put(_ context.Context, sessionID, listingID string, _ time.Time, _ time.Duration) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	s.values[sessionID] = listingID
	return nil
}

func (s *memorySlotStore) Get(_ context.Context, sessionID string, _ time.Time) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	value, ok := s.values[sessionID]
	return value, ok, nil
}

func (s *memorySlotStore) Clear(_ context.Context, sessionID string) error {
	s.clears++
	delete(s.values, sessionID)
	return nil
}

type stubEventPublisher struct {
	messages []events.LifecycleMessage
	err      error
}

func (s *stubEventPublisher) PublishLifecycleEvent(_ context.Context, message events.LifecycleMessage) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.messages = append(s.messages, message)
	return "msg-1", nil
}

type stubCommerceProvider struct {
	name      string
	requests  []commerce.CheckoutSessionRequest
	session   commerce.CheckoutSession
	createErr error
}

func (s *stubCommerceProvider) Name() string {
	if s.name == "" {
		return "stripe"
	}
	return s.name
}

func (s *stubCommerceProvider) CreateCheckoutSession(_ context.Context, req commerce.CheckoutSessionRequest) (commerce.CheckoutSession, error) {
	s.requests = append(s.requests, req)
	if s.createErr != nil {
		return commerce.CheckoutSession{}, s.createErr
	}
	return s.session, nil
}

type stubSigner struct {
	bucket string
	object string
	opts   storage.SignedURLOptions
	result storage.SignedURLResult
	err    error
}

func (s *stubSigner) SignedURL(_ context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error) {
	s.bucket = bucket
	s.object = object
	s.opts = opts
	if s.err != nil {
		return storage.SignedURLResult{}, s.err
	}
	return s.result, nil
}
