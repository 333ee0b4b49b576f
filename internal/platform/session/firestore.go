package session

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "pending_listing_slots"

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name used to store slots.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// FirestoreStore implements Store backed by Google Cloud Firestore.
// Expired slots are ignored on read and deleted lazily.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore constructs a Firestore-backed session slot store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:     client,
		collection: defaultCollection,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type slotRecord struct {
	ListingID string    `firestore:"listing_id"`
	CreatedAt time.Time `firestore:"created_at"`
	ExpiresAt time.Time `firestore:"expires_at"`
}

// Put stores the pending-listing reference, replacing any previous one.
func (s *FirestoreStore) Put(ctx context.Context, sessionID, listingID string, now time.Time, ttl time.Duration) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	record := slotRecord{
		ListingID: strings.TrimSpace(listingID),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	_, err := s.client.Collection(s.collection).Doc(sessionID).Set(ctx, record)
	return err
}

// Get returns the stored reference when present and unexpired.
func (s *FirestoreStore) Get(ctx context.Context, sessionID string, now time.Time) (string, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", false, ErrInvalidKey
	}
	snap, err := s.client.Collection(s.collection).Doc(sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, err
	}
	var record slotRecord
	if err := snap.DataTo(&record); err != nil {
		return "", false, err
	}
	if !record.ExpiresAt.IsZero() && !now.UTC().Before(record.ExpiresAt) {
		// Lazy expiry; deletion failure is harmless here.
		_, _ = snap.Ref.Delete(ctx)
		return "", false, nil
	}
	return record.ListingID, true, nil
}

// Clear removes the reference. Clearing an absent slot is a no-op.
func (s *FirestoreStore) Clear(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidKey
	}
	_, err := s.client.Collection(s.collection).Doc(sessionID).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

var _ Store = (*FirestoreStore)(nil)
