package storeguard

import (
	"context"
	"errors"
	"io"

	"github.com/quanvm/storeguard/captcha"
	"github.com/quanvm/storeguard/csrf"
	"github.com/quanvm/storeguard/internal/audit"
	"github.com/quanvm/storeguard/internal/limiters"
	"github.com/quanvm/storeguard/internal/stores"
	"github.com/quanvm/storeguard/password"
	"github.com/quanvm/storeguard/token"
)

// AuditEvent is the structured security record emitted on every decision
// branch.
type AuditEvent = audit.Event

// AuditSink receives AuditEvent values from the engine's async dispatcher.
type AuditSink = audit.Sink

// NoOpSink is an AuditSink that silently discards all events.
type NoOpSink = audit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = audit.ChannelSink

// JSONWriterSink is an AuditSink writing one JSON event per line.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// Engine sequences the login decision pipeline and the surrounding account
// security operations. Construct it through [Builder]; a zero Engine is
// not usable.
type Engine struct {
	config      Config
	accounts    AccountStore
	mailer      Mailer
	hasher      *password.Hasher
	tokens      *token.Issuer
	totp        *totpManager
	csrfGuard   *csrf.Guard
	captcha     captcha.Verifier
	resetStore  *stores.ResetStore
	rateLimiter *limiters.LoginLimiter
	audit       *audit.Dispatcher
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were shed because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// VerifySession resolves a bearer session token to its account ID. Any
// invalid token yields ErrTokenInvalid.
func (e *Engine) VerifySession(tokenString string) (string, error) {
	if e == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}
	subject, err := e.tokens.Verify(tokenString)
	if err != nil {
		return "", ErrTokenInvalid
	}
	return subject, nil
}

// EnsureCSRFToken returns the anti-forgery token bound to the session,
// binding a fresh one if needed. Render it into every state-changing form.
func (e *Engine) EnsureCSRFToken(ctx context.Context, sessionID string) (string, error) {
	if e == nil || e.csrfGuard == nil {
		return "", ErrEngineNotReady
	}
	tok, err := e.csrfGuard.EnsureToken(ctx, sessionID)
	if err != nil {
		if errors.Is(err, csrf.ErrRejected) {
			return "", ErrCSRFRejected
		}
		return "", err
	}
	return tok, nil
}

// IssueCaptchaChallenge generates a new local challenge for the session
// and returns the question to render on the login page. Only meaningful
// when the engine runs the local captcha strategy.
func (e *Engine) IssueCaptchaChallenge(ctx context.Context, sessionID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	challenger, ok := e.captcha.(captcha.Challenger)
	if !ok {
		return "", ErrCaptchaUnavailable
	}
	question, err := challenger.Issue(ctx, sessionID)
	if err != nil {
		return "", ErrCaptchaUnavailable
	}
	return question, nil
}

// UnlockAccount clears an account's risk state ahead of lock expiry. An
// administrative escape hatch; normal unlocking is passive via the stored
// timestamp.
func (e *Engine) UnlockAccount(ctx context.Context, accountID string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if err := e.resetRisk(ctx, accountID); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventAccountUnlocked, true, accountID, "risk state cleared by operator", nil)
	return nil
}
