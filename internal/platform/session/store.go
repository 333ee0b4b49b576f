// Package session keeps the per-user pending-listing slot: the single
// mutable reference written at checkout initiation and consulted as a
// fallback when a payment signal arrives without a listing
// back-reference on the order.
package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds how long a pending-listing reference stays
// resolvable after checkout initiation.
const DefaultTTL = 2 * time.Hour

// ErrInvalidKey is returned when the session identifier is empty.
var ErrInvalidKey = errors.New("session: invalid session id")

// Store holds at most one pending-listing reference per session. Put
// overwrites any previous value; Get ignores expired entries.
type Store interface {
	Put(ctx context.Context, sessionID, listingID string, now time.Time, ttl time.Duration) error
	Get(ctx context.Context, sessionID string, now time.Time) (string, bool, error)
	Clear(ctx context.Context, sessionID string) error
}
