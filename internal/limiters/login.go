// Package limiters enforces fixed-window attempt budgets for the login
// endpoint using Redis counters. This is endpoint pressure relief per
// identifier and per IP; the per-account escalation state machine lives in
// the engine and is unaffected by these counters.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited indicates the attempt budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable indicates the limiter backend is unreachable.
	ErrRedisUnavailable = errors.New("limiter backend unavailable")
)

// Config holds limiter tuning parameters.
type Config struct {
	MaxAttempts      int
	Window           time.Duration
	EnableIPThrottle bool
}

// LoginLimiter counts attempts per identifier and per IP in fixed windows.
type LoginLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a LoginLimiter backed by the given Redis client.
func New(client redis.UniversalClient, cfg Config) *LoginLimiter {
	return &LoginLimiter{redis: client, config: cfg}
}

func loginUserKey(handle string) string {
	return "lrl:u:" + handle
}

func loginIPKey(ip string) string {
	return "lrl:ip:" + ip
}

// Check reports whether the handle+IP pair is still within budget.
func (l *LoginLimiter) Check(ctx context.Context, handle, ip string) error {
	if err := l.checkCounter(ctx, loginUserKey(handle)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// Increment records a failed attempt for the handle+IP pair.
func (l *LoginLimiter) Increment(ctx context.Context, handle, ip string) error {
	if err := l.incrementCounter(ctx, loginUserKey(handle)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.incrementCounter(ctx, loginIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the counters for the handle+IP pair after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, handle, ip string) error {
	keys := []string{loginUserKey(handle)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *LoginLimiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *LoginLimiter) incrementCounter(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		// First failure opens the window; the counter expires with it.
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}
