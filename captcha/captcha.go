// Package captcha verifies human-proof responses on the login path. Two
// interchangeable strategies implement [Verifier]: a remote verification
// service ([RemoteVerifier]) and a locally generated arithmetic challenge
// ([LocalChallenger]). Selection is configuration, not conditionals.
package captcha

import (
	"context"
	"errors"
)

var (
	// ErrFailed means the response was checked and is wrong.
	ErrFailed = errors.New("captcha verification failed")
	// ErrUnavailable means the response could not be checked at all
	// (network failure, parse failure, missing challenge backend). Callers
	// decide fail-open versus fail-closed; the verifier does not.
	ErrUnavailable = errors.New("captcha verification unavailable")
)

// Verifier checks one captcha response. sessionID identifies the
// server-side session a local challenge was bound to; remote strategies
// ignore it. A nil return means the response is accepted.
type Verifier interface {
	Verify(ctx context.Context, sessionID, response string) error
}

// Challenger is implemented by strategies that generate their own
// challenge material at render time.
type Challenger interface {
	// Issue creates a fresh challenge for the session and returns the
	// question to render. Any previously issued challenge for the session
	// is replaced.
	Issue(ctx context.Context, sessionID string) (string, error)
}
