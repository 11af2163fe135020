package storeguard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/quanvm/storeguard/internal/stores"
)

// RequestPasswordReset issues a single-use reset token for the account
// behind the given email and delivers it through the configured mailer.
// To prevent account enumeration, an unknown email is reported as success;
// only backend failures surface as errors.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if !e.config.Reset.Enabled || e.resetStore == nil || e.mailer == nil {
		return ErrResetUnavailable
	}
	if email == "" {
		return ErrInputInvalid
	}

	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "no account for email", nil)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	plaintext, err := newResetToken()
	if err != nil {
		return err
	}
	if err := e.resetStore.Save(ctx, plaintext, account.ID, e.config.Reset.TTL); err != nil {
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}

	if err := e.mailer.SendPasswordReset(ctx, account.Email, plaintext, account.DisplayName); err != nil {
		// An undeliverable token must not stay redeemable.
		_ = e.resetStore.Delete(ctx, plaintext)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.ID, "reset mail delivery failed", nil)
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, "", nil)
	return nil
}

// ConfirmPasswordReset redeems a reset token and installs a new password.
// The token is consumed on first use whether or not the new password is
// accepted; a rejected password means requesting a fresh token. Completing
// a reset clears the account's risk state, including an open lock window.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if e == nil || e.accounts == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	if !e.config.Reset.Enabled || e.resetStore == nil {
		return ErrResetUnavailable
	}
	if resetToken == "" || newPassword == "" {
		return ErrInputInvalid
	}

	accountID, err := e.resetStore.Consume(ctx, resetToken)
	if err != nil {
		if errors.Is(err, stores.ErrResetNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetComplete, false, "", "unknown or expired reset token", nil)
			return ErrResetInvalid
		}
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetComplete, false, accountID, "new password below entropy floor", nil)
		return err
	}
	if err := e.checkPasswordHistory(ctx, accountID, newPassword); err != nil {
		if errors.Is(err, ErrPasswordReuse) {
			e.emitAudit(ctx, auditEventPasswordResetComplete, false, accountID, "new password matches a retained one", nil)
		}
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if e.config.Password.HistoryLimit > 0 {
		_ = e.accounts.RecordPasswordHistory(ctx, accountID, hash, e.config.Password.HistoryLimit)
	}
	if err := e.resetRisk(ctx, accountID); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventPasswordResetComplete, true, accountID, "", nil)
	return nil
}

// newResetToken draws 32 random bytes and encodes them as hex. Only the
// SHA-256 of the token is ever persisted; the plaintext exists in the
// reset mail alone.
func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
