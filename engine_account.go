package storeguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	passwordvalidator "github.com/wagslane/go-password-validator"
)

const maxFieldLength = 255

// CreateAccount registers a new account with a hashed password and a
// default-deny role. Handle and email uniqueness is the store's concern;
// duplicates surface as ErrAccountExists.
func (e *Engine) CreateAccount(ctx context.Context, input CreateAccountInput) (*Account, error) {
	if e == nil || e.accounts == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	if input.Handle == "" || input.Email == "" || input.Password == "" {
		return nil, ErrInputInvalid
	}
	if len(input.Handle) > maxFieldLength || len(input.Email) > maxFieldLength {
		return nil, ErrInputInvalid
	}
	if err := e.checkPasswordPolicy(input.Password); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = RoleCustomer
	}
	if len(DefaultPermissions(role)) == 0 {
		return nil, ErrInputInvalid
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		Handle:            input.Handle,
		Email:             input.Email,
		DisplayName:       input.DisplayName,
		PasswordHash:      hash,
		PasswordChangedAt: time.Now(),
		Role:              role,
		Active:            true,
	}
	if err := e.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if e.config.Password.HistoryLimit > 0 {
		_ = e.accounts.RecordPasswordHistory(ctx, account.ID, hash, e.config.Password.HistoryLimit)
	}

	e.emitAudit(ctx, auditEventAccountCreated, true, account.ID, "", func() map[string]string {
		return map[string]string{"handle": account.Handle, "role": string(role)}
	})
	return account, nil
}

// checkPasswordPolicy enforces the entropy floor for new passwords.
func (e *Engine) checkPasswordPolicy(plaintext string) error {
	if e.config.Password.MinEntropyBits <= 0 {
		return nil
	}
	if err := passwordvalidator.Validate(plaintext, e.config.Password.MinEntropyBits); err != nil {
		return ErrPasswordPolicy
	}
	return nil
}

// checkPasswordHistory rejects a candidate password matching any retained
// history hash for the account.
func (e *Engine) checkPasswordHistory(ctx context.Context, accountID, plaintext string) error {
	if e.config.Password.HistoryLimit <= 0 {
		return nil
	}
	history, err := e.accounts.PasswordHistory(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, old := range history {
		match, err := e.hasher.Verify(plaintext, old)
		if err != nil {
			continue
		}
		if match {
			return ErrPasswordReuse
		}
	}
	return nil
}
