package storeguard

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called on a
	// partially constructed engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInputInvalid is returned for malformed request shapes (missing or
	// oversized fields). Caller's fault, 400-class.
	ErrInputInvalid = errors.New("invalid input")
	// ErrInvalidCredentials is returned for any wrong-password or
	// unknown-account rejection. Unknown accounts map to this error on
	// purpose so handles cannot be enumerated.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned when the account exists but is not active.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountLocked is returned while the account's lock window is open.
	// The accompanying LoginResult carries the remaining lock duration.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountExists is returned by CreateAccount for duplicate handles or emails.
	ErrAccountExists = errors.New("account already exists")
	// ErrCSRFRejected is returned when an unsafe-method attempt carries a
	// missing or mismatched anti-forgery token.
	ErrCSRFRejected = errors.New("csrf token rejected")
	// ErrCaptchaRequired is returned when the account's risk state demands a
	// captcha and the attempt did not include a response.
	ErrCaptchaRequired = errors.New("captcha required")
	// ErrCaptchaInvalid is returned when a supplied captcha response fails
	// verification.
	ErrCaptchaInvalid = errors.New("captcha verification failed")
	// ErrCaptchaUnavailable is returned when the captcha backend cannot be
	// reached and the engine is configured fail-closed.
	ErrCaptchaUnavailable = errors.New("captcha backend unavailable")
	// ErrSecondFactorInvalid is returned for a wrong or replayed TOTP code.
	ErrSecondFactorInvalid = errors.New("invalid second factor code")
	// ErrSecondFactorNotConfigured is returned when a TOTP operation targets
	// an account without an enrolled secret.
	ErrSecondFactorNotConfigured = errors.New("second factor not configured")
	// ErrPasswordExpired signals that credentials verified but the password
	// is older than the configured horizon; the caller must route the user
	// into a forced password change instead of granting a session.
	ErrPasswordExpired = errors.New("password expired")
	// ErrPasswordPolicy is returned when a new password does not meet the
	// minimum entropy requirement.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a new password matches one of the
	// retained history hashes.
	ErrPasswordReuse = errors.New("password was used recently")
	// ErrResetInvalid is returned for unknown, expired, or already consumed
	// password reset tokens. All three cases look identical to the caller.
	ErrResetInvalid = errors.New("reset token invalid or expired")
	// ErrResetUnavailable is returned when the reset backend or the mailer
	// fails; the token is discarded rather than left half-delivered.
	ErrResetUnavailable = errors.New("password reset unavailable")
	// ErrRateLimited is returned when the per-identifier or per-IP attempt
	// budget for the login endpoint is exhausted.
	ErrRateLimited = errors.New("too many attempts")
	// ErrTokenInvalid is returned by session token verification for any
	// signature, shape, or expiry problem. Which check failed is not leaked.
	ErrTokenInvalid = errors.New("invalid session token")
	// ErrAccountNotFound is the sentinel AccountStore implementations must
	// return for missing accounts. It never escapes Engine.Login.
	ErrAccountNotFound = errors.New("account not found")
	// ErrStoreUnavailable wraps account store failures (timeouts included)
	// so they are never mistaken for failed credentials.
	ErrStoreUnavailable = errors.New("account store unavailable")
)
