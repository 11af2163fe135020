package storeguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quanvm/storeguard/captcha"
	"github.com/quanvm/storeguard/csrf"
	"github.com/quanvm/storeguard/internal/audit"
	"github.com/quanvm/storeguard/internal/limiters"
)

// Login runs the full decision pipeline for one attempt, short-circuiting
// on the first failed check:
//
//	CSRF → rate limit → account resolution → lock check → captcha gate →
//	password → second factor → password freshness → token issuance
//
// Every branch emits an audit event. Rejections come back as sentinel
// errors the presentation layer can distinguish; the returned LoginResult
// may carry advisory fields (attempt count, captcha flag, remaining lock
// time) alongside a non-nil error. A nil error with
// LoginResult.SecondFactorRequired set is the intermediate
// "supply your code" response, not an authenticated session.
func (e *Engine) Login(ctx context.Context, attempt LoginAttempt) (*LoginResult, error) {
	if e == nil || e.accounts == nil || e.hasher == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)

	// Step 1: anti-forgery. Safe methods pass inside the guard.
	if e.config.CSRF.Enabled && e.csrfGuard != nil {
		if err := e.csrfGuard.Verify(ctx, attempt.SessionID, attempt.CSRFToken, attempt.Method); err != nil {
			if errors.Is(err, csrf.ErrRejected) {
				e.emitAudit(ctx, auditEventCSRFRejected, false, "", "anti-forgery token missing or mismatched", nil)
				return nil, ErrCSRFRejected
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	// Step 2: endpoint rate limit, independent of per-account risk.
	if e.rateLimiter != nil {
		if err := e.rateLimiter.Check(ctx, attempt.Handle, ip); err != nil {
			if errors.Is(err, limiters.ErrRateLimited) {
				e.emitAudit(ctx, auditEventRateLimited, false, "", "login attempt budget exhausted", func() map[string]string {
					return map[string]string{"handle": attempt.Handle}
				})
				return nil, ErrRateLimited
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if attempt.Handle == "" || attempt.Password == "" {
		e.incrementRate(ctx, attempt.Handle, ip)
		e.emitAudit(ctx, auditEventLoginFailed, false, "", "empty handle or password", nil)
		return nil, ErrInputInvalid
	}

	// Step 3: resolve the account. Unknown handles are indistinguishable
	// from wrong passwords at the boundary.
	account, err := e.accounts.FindByHandle(ctx, attempt.Handle)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.incrementRate(ctx, attempt.Handle, ip)
			e.emitAudit(ctx, auditEventLoginFailed, false, "", "unknown handle", func() map[string]string {
				return map[string]string{"handle": attempt.Handle}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !account.Active {
		e.emitAudit(ctx, auditEventLoginFailed, false, account.ID, "account disabled", nil)
		return nil, ErrAccountDisabled
	}

	now := time.Now()

	// Step 4: lock check. While the window is open nothing else runs — not
	// the captcha, not the credential check.
	if account.Risk.Locked(now) {
		remaining := time.Until(*account.Risk.LockedUntil)
		e.emitAuditSeverity(ctx, auditEventLoginFailed, audit.SeverityCritical, false, account.ID,
			"attempt while locked", func() map[string]string {
				return map[string]string{"remaining": remaining.Round(time.Second).String()}
			})
		return &LoginResult{
			FailedAttempts:  account.Risk.FailedAttempts,
			CaptchaRequired: account.Risk.CaptchaRequired,
			RetryAfter:      remaining,
		}, ErrAccountLocked
	}

	// Step 5: captcha gate. A missing or wrong captcha is a re-prompt, not
	// a credential failure: the counter stays untouched by policy.
	if account.Risk.CaptchaRequired {
		result := &LoginResult{
			CaptchaRequired: true,
			FailedAttempts:  account.Risk.FailedAttempts,
		}
		if attempt.CaptchaResponse == "" {
			e.emitAudit(ctx, auditEventCaptchaRequired, false, account.ID, "captcha response missing", nil)
			return result, ErrCaptchaRequired
		}
		if err := e.captcha.Verify(ctx, attempt.SessionID, attempt.CaptchaResponse); err != nil {
			switch {
			case errors.Is(err, captcha.ErrUnavailable):
				if e.config.Captcha.FailOpen {
					e.emitAudit(ctx, auditEventCaptchaUnavailable, true, account.ID, "captcha backend unreachable, failing open", nil)
					break
				}
				e.emitAudit(ctx, auditEventCaptchaUnavailable, false, account.ID, "captcha backend unreachable", nil)
				return result, ErrCaptchaUnavailable
			default:
				e.emitAudit(ctx, auditEventCaptchaFailed, false, account.ID, "captcha response rejected", nil)
				return result, ErrCaptchaInvalid
			}
		}
	}

	// Step 6: the credential check itself.
	ok, err := e.hasher.Verify(attempt.Password, account.PasswordHash)
	if err != nil || !ok {
		return e.failCredentialCheck(ctx, attempt.Handle, ip, account)
	}

	// Step 7: second factor.
	if account.TOTPEnabled {
		if attempt.TOTPCode == "" {
			e.emitAudit(ctx, auditEventSecondFactorRequired, true, account.ID, "awaiting second factor", nil)
			return &LoginResult{
				AccountID:            account.ID,
				SecondFactorRequired: true,
			}, nil
		}
		if err := e.checkSecondFactor(ctx, account, attempt.TOTPCode, now); err != nil {
			return nil, err
		}
	}

	// Step 8: password freshness. Credentials are good, but stale
	// passwords route into a forced change instead of a session.
	if e.config.Password.MaxAge > 0 && !account.PasswordChangedAt.IsZero() &&
		now.Sub(account.PasswordChangedAt) > e.config.Password.MaxAge {
		e.emitAudit(ctx, auditEventPasswordExpired, false, account.ID, "password beyond freshness horizon", nil)
		return &LoginResult{AccountID: account.ID}, ErrPasswordExpired
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, account, attempt.Password)
	}

	// Step 9: full success. Risk state resets unconditionally of prior
	// escalation, then a session token is issued.
	if err := e.resetRisk(ctx, account.ID); err != nil {
		return nil, err
	}
	if e.rateLimiter != nil {
		_ = e.rateLimiter.Reset(ctx, attempt.Handle, ip)
	}

	sessionToken, err := e.tokens.Issue(account.ID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, "", func() map[string]string {
		return map[string]string{"handle": attempt.Handle}
	})
	return &LoginResult{
		Token:     sessionToken,
		AccountID: account.ID,
	}, nil
}

// failCredentialCheck advances the risk state and grades the rejection by
// the post-increment counter: plain, captcha-from-now-on, or locked.
func (e *Engine) failCredentialCheck(ctx context.Context, handle, ip string, account *Account) (*LoginResult, error) {
	e.incrementRate(ctx, handle, ip)

	state, err := e.recordLoginFailure(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{
		FailedAttempts:  state.FailedAttempts,
		CaptchaRequired: state.CaptchaRequired,
	}

	if state.LockedUntil != nil {
		result.RetryAfter = time.Until(*state.LockedUntil)
		e.emitAudit(ctx, auditEventAccountLocked, false, account.ID, "failure threshold reached", func() map[string]string {
			return map[string]string{
				"failed_attempts": fmt.Sprintf("%d", state.FailedAttempts),
			}
		})
		return result, ErrAccountLocked
	}

	e.emitAudit(ctx, auditEventLoginFailed, false, account.ID, "password mismatch", func() map[string]string {
		return map[string]string{
			"failed_attempts": fmt.Sprintf("%d", state.FailedAttempts),
		}
	})
	return result, ErrInvalidCredentials
}

// checkSecondFactor verifies a TOTP code. Second-factor failures are a
// separate track: they never advance the password failure counter.
func (e *Engine) checkSecondFactor(ctx context.Context, account *Account, code string, now time.Time) error {
	ok, counter, err := e.totp.VerifyCode(account.TOTPSecret, code, now)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventSecondFactorFailed, false, account.ID, "totp code rejected", nil)
		return ErrSecondFactorInvalid
	}

	if e.config.TOTP.EnforceReplayProtection {
		if counter <= account.TOTPLastCounter {
			e.emitAudit(ctx, auditEventSecondFactorFailed, false, account.ID, "totp code replayed", nil)
			return ErrSecondFactorInvalid
		}
		if err := e.accounts.UpdateTOTPLastCounter(ctx, account.ID, counter); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

// maybeUpgradeHash rehashes a verified password whose digest carries
// weaker parameters than the current config. Best effort: the login does
// not fail if the upgrade cannot be persisted.
func (e *Engine) maybeUpgradeHash(ctx context.Context, account *Account, plaintext string) {
	needs, err := e.hasher.NeedsUpgrade(account.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := e.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	// Keep the original change timestamp: a cost upgrade is not a new
	// password and must not extend the freshness horizon.
	_ = e.accounts.UpdatePasswordHash(ctx, account.ID, upgraded, account.PasswordChangedAt)
}

func (e *Engine) incrementRate(ctx context.Context, handle, ip string) {
	if e.rateLimiter == nil {
		return
	}
	_ = e.rateLimiter.Increment(ctx, handle, ip)
}
