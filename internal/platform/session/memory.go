package session

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	listingID string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Put stores the pending-listing reference, replacing any previous one.
func (s *MemoryStore) Put(_ context.Context, sessionID, listingID string, now time.Time, ttl time.Duration) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memoryEntry{
		listingID: strings.TrimSpace(listingID),
		expiresAt: now.UTC().Add(ttl),
	}
	return nil
}

// Get returns the stored reference when present and unexpired.
func (s *MemoryStore) Get(_ context.Context, sessionID string, now time.Time) (string, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", false, ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return "", false, nil
	}
	if !now.UTC().Before(entry.expiresAt) {
		delete(s.entries, sessionID)
		return "", false, nil
	}
	return entry.listingID, true, nil
}

// Clear removes the reference. Clearing an absent slot is a no-op.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
