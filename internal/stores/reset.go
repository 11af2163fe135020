// Package stores holds the Redis-backed ephemeral state of the engine:
// password reset tokens. Accounts themselves live behind the caller's
// AccountStore; only short-lived secrets belong here.
package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrResetNotFound covers unknown, expired, and already consumed
	// tokens alike.
	ErrResetNotFound = errors.New("reset record not found")
	// ErrResetUnavailable indicates the backend is unreachable.
	ErrResetUnavailable = errors.New("reset backend unavailable")
)

// ResetStore maps the SHA-256 hash of a reset token to an account ID, with
// a TTL. The plaintext token never reaches Redis, so a dump of the store
// does not yield working reset links.
type ResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewResetStore creates a ResetStore using prefix for its keys.
func NewResetStore(client redis.UniversalClient, prefix string) *ResetStore {
	if prefix == "" {
		prefix = "prt"
	}
	return &ResetStore{redis: client, prefix: prefix}
}

func (s *ResetStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}

// Save binds the token's hash to accountID for ttl.
func (s *ResetStore) Save(ctx context.Context, token, accountID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(token), accountID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}
	return nil
}

// Consume resolves the token to its account ID and deletes the binding in
// the same step. GETDEL makes the token single-use even under concurrent
// confirmation attempts: exactly one caller gets the account ID.
func (s *ResetStore) Consume(ctx context.Context, token string) (string, error) {
	accountID, err := s.redis.GetDel(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}
	return accountID, nil
}

// Delete discards an outstanding token binding, for when delivery fails
// after Save.
func (s *ResetStore) Delete(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}
	return nil
}
