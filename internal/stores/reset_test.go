package stores

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*ResetStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewResetStore(rdb, "prt"), mr
}

func TestSaveAndConsume(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "plaintext-token", "u1", time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	accountID, err := store.Consume(ctx, "plaintext-token")
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if accountID != "u1" {
		t.Fatalf("accountID = %q, want %q", accountID, "u1")
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "tok", "u1", time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if _, err := store.Consume(ctx, "tok"); err != nil {
		t.Fatalf("first Consume error: %v", err)
	}
	if _, err := store.Consume(ctx, "tok"); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("second Consume: expected ErrResetNotFound, got %v", err)
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Consume(context.Background(), "never-issued"); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected ErrResetNotFound, got %v", err)
	}
}

func TestTokenExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "tok", "u1", time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, "tok"); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected ErrResetNotFound after expiry, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "tok", "u1", time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := store.Delete(ctx, "tok"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := store.Consume(ctx, "tok"); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected ErrResetNotFound after delete, got %v", err)
	}
}

func TestPlaintextTokenNeverStored(t *testing.T) {
	store, mr := newTestStore(t)

	if err := store.Save(context.Background(), "plaintext-token", "u1", time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	// Only a digest of the token may appear in the key space.
	for _, key := range mr.Keys() {
		if strings.Contains(key, "plaintext-token") {
			t.Fatalf("plaintext token leaked into key %q", key)
		}
	}
}

func TestBackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewResetStore(rdb, "prt")
	mr.Close()

	if err := store.Save(context.Background(), "tok", "u1", time.Minute); !errors.Is(err, ErrResetUnavailable) {
		t.Fatalf("Save: expected ErrResetUnavailable, got %v", err)
	}
	if _, err := store.Consume(context.Background(), "tok"); !errors.Is(err, ErrResetUnavailable) {
		t.Fatalf("Consume: expected ErrResetUnavailable, got %v", err)
	}
}
