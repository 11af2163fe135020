package storeguard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ProvisionTOTP generates a second-factor secret for the account and
// stores it disabled. The returned provisioning URI encodes issuer and
// handle for enrollment QR rendering; the factor only takes effect once
// [Engine.EnableTOTP] confirms the user can produce a valid code.
func (e *Engine) ProvisionTOTP(ctx context.Context, accountID string) (*TOTPProvision, error) {
	if e == nil || e.accounts == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.findAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.accounts.SetTOTP(ctx, account.ID, secret, false); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &TOTPProvision{
		SecretBase32: secretBase32,
		URI:          e.totp.ProvisionURI(secretBase32, account.Handle),
	}, nil
}

// EnableTOTP turns the second factor on after the user proves possession
// of the provisioned secret with one valid code.
func (e *Engine) EnableTOTP(ctx context.Context, accountID, code string) error {
	if e == nil || e.accounts == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	account, err := e.findAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if len(account.TOTPSecret) == 0 {
		return ErrSecondFactorNotConfigured
	}

	ok, counter, err := e.totp.VerifyCode(account.TOTPSecret, code, time.Now())
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventSecondFactorFailed, false, account.ID, "enrollment code rejected", nil)
		return ErrSecondFactorInvalid
	}

	if err := e.accounts.SetTOTP(ctx, account.ID, account.TOTPSecret, true); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if e.config.TOTP.EnforceReplayProtection {
		_ = e.accounts.UpdateTOTPLastCounter(ctx, account.ID, counter)
	}

	e.emitAudit(ctx, auditEventTOTPEnabled, true, account.ID, "", nil)
	return nil
}

// DisableTOTP removes the second factor from the account.
func (e *Engine) DisableTOTP(ctx context.Context, accountID string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	account, err := e.findAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := e.accounts.SetTOTP(ctx, account.ID, nil, false); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventTOTPDisabled, true, account.ID, "", nil)
	return nil
}

func (e *Engine) findAccountByID(ctx context.Context, accountID string) (*Account, error) {
	account, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return account, nil
}
