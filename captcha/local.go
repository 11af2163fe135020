package captcha

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LocalChallenger generates a single-digit arithmetic question at render
// time and stores the expected answer keyed to the session. Each stored
// answer survives exactly one verification attempt: consumption is an
// atomic read-then-delete, so a concurrent second attempt can never reuse
// it.
type LocalChallenger struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewLocalChallenger creates a LocalChallenger storing answers under
// prefix with the given TTL.
func NewLocalChallenger(client redis.UniversalClient, prefix string, ttl time.Duration) *LocalChallenger {
	if prefix == "" {
		prefix = "cap"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LocalChallenger{redis: client, prefix: prefix, ttl: ttl}
}

func (c *LocalChallenger) key(sessionID string) string {
	return c.prefix + ":" + sessionID
}

// Issue generates a fresh question for the session, replacing any earlier
// one, and returns the question text.
func (c *LocalChallenger) Issue(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrUnavailable
	}

	a, err := randomDigit()
	if err != nil {
		return "", err
	}
	b, err := randomDigit()
	if err != nil {
		return "", err
	}
	plus, err := randomBool()
	if err != nil {
		return "", err
	}

	var question string
	var answer int
	if plus {
		question = fmt.Sprintf("What is %d + %d?", a, b)
		answer = a + b
	} else {
		// Order the operands so the expected answer is never negative.
		if a < b {
			a, b = b, a
		}
		question = fmt.Sprintf("What is %d - %d?", a, b)
		answer = a - b
	}

	if err := c.redis.Set(ctx, c.key(sessionID), strconv.Itoa(answer), c.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return question, nil
}

// Verify consumes the session's stored answer and compares it to response.
// The stored answer is gone after this call regardless of outcome, so a
// wrong guess forces a new challenge and a right one cannot be replayed.
func (c *LocalChallenger) Verify(ctx context.Context, sessionID, response string) error {
	if sessionID == "" {
		return ErrFailed
	}

	expected, err := c.redis.GetDel(ctx, c.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// No challenge outstanding: nothing to verify against.
			return ErrFailed
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if strings.TrimSpace(response) != expected {
		return ErrFailed
	}
	return nil
}

func randomDigit() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

func randomBool() (bool, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return false, err
	}
	return n.Int64() == 1, nil
}
