// Package captoken issues and verifies the capability tokens guarding
// state-changing listing actions. A token authorises exactly one
// purpose on exactly one listing for a bounded lifetime; it is not a
// session credential and carries no identity.
package captoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Purpose scopes a token to a single action namespace. Tokens are never
// valid across purposes.
type Purpose string

const (
	PurposeHide        Purpose = "hide"
	PurposeRepublish   Purpose = "republish"
	PurposeDeleteDraft Purpose = "delete-draft"
)

// Valid reports whether the purpose is a known action namespace.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeHide, PurposeRepublish, PurposeDeleteDraft:
		return true
	}
	return false
}

var (
	// ErrInvalidToken is returned for malformed or forged tokens, and
	// for tokens presented against a different purpose or subject.
	ErrInvalidToken = errors.New("captoken: invalid token")
	// ErrExpiredToken is returned when the token's lifetime has passed.
	ErrExpiredToken = errors.New("captoken: token expired")
)

// Issuer signs and verifies capability tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Config carries the Issuer construction parameters.
type Config struct {
	Secret string
	TTL    time.Duration
	Now    func() time.Time
}

// NewIssuer validates the configuration and returns a ready issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("captoken: secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("captoken: ttl must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(cfg.Secret), ttl: cfg.TTL, now: now}, nil
}

// Issue returns a token authorising purpose on subjectID until the
// issuer's TTL elapses.
func (i *Issuer) Issue(purpose Purpose, subjectID string) (string, error) {
	subjectID = strings.TrimSpace(subjectID)
	if !purpose.Valid() {
		return "", fmt.Errorf("captoken: unknown purpose %q", purpose)
	}
	if subjectID == "" {
		return "", errors.New("captoken: subject id is required")
	}
	expiry := i.now().Add(i.ttl).Unix()
	mac := i.sign(purpose, subjectID, expiry)
	payload := fmt.Sprintf("%d.%s", expiry, base64.RawURLEncoding.EncodeToString(mac))
	return payload, nil
}

// Verify checks that token authorises purpose on subjectID. The
// comparison is constant time; expiry is checked before the signature
// so an attacker learns nothing from the error distinction.
func (i *Issuer) Verify(token string, purpose Purpose, subjectID string) error {
	token = strings.TrimSpace(token)
	subjectID = strings.TrimSpace(subjectID)
	if token == "" || subjectID == "" || !purpose.Valid() {
		return ErrInvalidToken
	}

	dot := strings.IndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return ErrInvalidToken
	}
	expiry, err := strconv.ParseInt(token[:dot], 10, 64)
	if err != nil {
		return ErrInvalidToken
	}
	presented, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return ErrInvalidToken
	}

	if i.now().Unix() > expiry {
		return ErrExpiredToken
	}

	expected := i.sign(purpose, subjectID, expiry)
	if !hmac.Equal(presented, expected) {
		return ErrInvalidToken
	}
	return nil
}

func (i *Issuer) sign(purpose Purpose, subjectID string, expiry int64) []byte {
	mac := hmac.New(sha256.New, i.secret)
	fmt.Fprintf(mac, "%s|%s|%d", purpose, subjectID, expiry)
	return mac.Sum(nil)
}
