// Package csrf implements per-session anti-forgery tokens. A token is
// bound to one server-side session in Redis and checked on every
// state-changing request; safe methods pass without inspection.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenBytes = 32

var (
	// ErrRejected is returned for a missing session, a session with no
	// bound token, or a supplied token that does not match. None of these
	// cases passes implicitly.
	ErrRejected = errors.New("csrf token rejected")
	// ErrUnavailable indicates the token binding backend is unreachable.
	ErrUnavailable = errors.New("csrf backend unavailable")
)

// Guard binds anti-forgery tokens to sessions.
type Guard struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewGuard creates a Guard storing bindings under prefix with the given TTL.
func NewGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *Guard {
	if prefix == "" {
		prefix = "csrf"
	}
	return &Guard{redis: client, prefix: prefix, ttl: ttl}
}

func (g *Guard) key(sessionID string) string {
	return g.prefix + ":" + sessionID
}

// EnsureToken returns the session's bound token, generating and binding a
// fresh one if none exists yet. Idempotent: concurrent calls for the same
// session converge on one value.
func (g *Guard) EnsureToken(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrRejected
	}

	raw := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	candidate := hex.EncodeToString(raw)

	// SETNX keeps the first binder's token; the follow-up GET returns the
	// canonical value either way.
	if err := g.redis.SetNX(ctx, g.key(sessionID), candidate, g.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	bound, err := g.redis.Get(ctx, g.key(sessionID)).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return bound, nil
}

// Verify checks supplied against the session's bound token. Safe methods
// always pass without touching the backend. The comparison is
// constant-time.
func (g *Guard) Verify(ctx context.Context, sessionID, supplied, method string) error {
	if SafeMethod(method) {
		return nil
	}
	if sessionID == "" || supplied == "" {
		return ErrRejected
	}

	bound, err := g.redis.Get(ctx, g.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrRejected
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if subtle.ConstantTimeCompare([]byte(bound), []byte(supplied)) != 1 {
		return ErrRejected
	}
	return nil
}

// SafeMethod reports whether method is read-only and exempt from the check.
// An empty method is treated as unsafe.
func SafeMethod(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS", "TRACE":
		return true
	default:
		return false
	}
}

// FromRequest applies the accepted transport precedence: body form field
// first, then custom header, then query parameter. First present wins.
func FromRequest(formValue, headerValue, queryValue string) string {
	if formValue != "" {
		return formValue
	}
	if headerValue != "" {
		return headerValue
	}
	return queryValue
}
