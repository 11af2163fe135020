package storeguard

import (
	"context"
	"time"
)

// Role is the coarse authorization class of an account. Permissions are
// derived from the role on read via [DefaultPermissions]; they are never
// stored on the record.
type Role string

const (
	// RoleCustomer is the default role for self-registered accounts.
	RoleCustomer Role = "customer"
	// RoleStaff can manage catalog content.
	RoleStaff Role = "staff"
	// RoleAdmin can manage accounts and read audit history.
	RoleAdmin Role = "admin"
)

// RiskState holds the per-account counters that drive escalating login
// friction. It lives on the Account record and is mutated only through
// [AccountStore.UpdateRiskState].
type RiskState struct {
	// FailedAttempts counts consecutive failed password checks. Reset to
	// zero only by a fully successful login or a completed password reset.
	FailedAttempts int
	// CaptchaRequired becomes true when FailedAttempts reaches the captcha
	// threshold and stays true until the counter resets.
	CaptchaRequired bool
	// LockedUntil is non-nil while a lockout window is open. Expiry of the
	// window removes the hard block but does not touch FailedAttempts.
	LockedUntil *time.Time
}

// Locked reports whether the lock window is still open at now.
func (r RiskState) Locked(now time.Time) bool {
	return r.LockedUntil != nil && r.LockedUntil.After(now)
}

// Account is the identity record the engine operates on. The engine never
// persists accounts itself; ownership stays with the [AccountStore].
type Account struct {
	ID                string
	Handle            string
	Email             string
	DisplayName       string
	PasswordHash      string
	PasswordChangedAt time.Time
	Role              Role
	Active            bool

	TOTPSecret      []byte
	TOTPEnabled     bool
	TOTPLastCounter int64

	Risk RiskState
}

// AccountStore is the persistence boundary callers must implement.
//
// UpdateRiskState is the one contract with teeth: the store must apply the
// mutation atomically per account (single-document transaction,
// compare-and-set, or an equivalent serialization). Lost risk-state updates
// silently weaken the lockout guarantee. Lookup methods return
// [ErrAccountNotFound] for missing accounts; any other error is treated as
// a backend failure, never as a failed credential.
type AccountStore interface {
	FindByHandle(ctx context.Context, handle string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdatePasswordHash(ctx context.Context, id, hash string, changedAt time.Time) error
	UpdateRiskState(ctx context.Context, id string, apply func(RiskState) RiskState) (RiskState, error)
	SetTOTP(ctx context.Context, id string, secret []byte, enabled bool) error
	UpdateTOTPLastCounter(ctx context.Context, id string, counter int64) error

	// RecordPasswordHistory appends hash to the account's bounded history
	// list (oldest entry evicted beyond max). PasswordHistory returns the
	// retained hashes, newest first.
	RecordPasswordHistory(ctx context.Context, id, hash string, max int) error
	PasswordHistory(ctx context.Context, id string) ([]string, error)
}

// Mailer delivers the plaintext password reset token out of band. The
// engine calls it exactly once per token and never stores the plaintext.
type Mailer interface {
	SendPasswordReset(ctx context.Context, recipient, resetToken, displayName string) error
}

// LoginAttempt carries the already-extracted fields of one login request.
// The HTTP layer owns parsing; the engine owns the decision.
type LoginAttempt struct {
	Handle   string
	Password string

	// SessionID identifies the server-side session that CSRF and local
	// captcha state are bound to.
	SessionID string
	// CSRFToken is the anti-forgery token supplied with the request, after
	// the caller has applied the form > header > query precedence (see
	// [csrf.FromRequest]).
	CSRFToken string
	// Method is the HTTP method of the request. Safe methods bypass the
	// CSRF check. Empty is treated as POST.
	Method string

	// CaptchaResponse is the captcha answer or remote response token, when
	// the login form rendered a challenge.
	CaptchaResponse string
	// TOTPCode is the second-factor code, when the account has one enrolled.
	TOTPCode string
}

// LoginResult is returned by [Engine.Login]. On success Token is set. On
// specific rejections the advisory fields tell the presentation layer what
// to render next; they are meaningful alongside a non-nil error.
type LoginResult struct {
	// Token is the signed bearer session token. Set only on full success.
	Token string
	// AccountID identifies the account, on success and on the intermediate
	// second-factor-required response.
	AccountID string

	// SecondFactorRequired is set, with a nil error, when credentials
	// verified but a TOTP code must be supplied in a follow-up attempt.
	SecondFactorRequired bool

	// CaptchaRequired advises that the next render must include a captcha.
	CaptchaRequired bool
	// FailedAttempts is the post-attempt counter value, for attempt-count-aware
	// messages.
	FailedAttempts int
	// RetryAfter is the remaining lockout duration when the error is
	// ErrAccountLocked.
	RetryAfter time.Duration
}

// TOTPProvision holds the enrollment material returned by
// [Engine.ProvisionTOTP]. URI is an otpauth:// URI suitable for QR
// rendering; QR generation itself is the caller's concern.
type TOTPProvision struct {
	SecretBase32 string
	URI          string
}

// CreateAccountInput is the input for [Engine.CreateAccount]. Handle,
// Email, and Password are required; Role defaults to [RoleCustomer].
type CreateAccountInput struct {
	Handle      string
	Email       string
	Password    string
	DisplayName string
	Role        Role
}
