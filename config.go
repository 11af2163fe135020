package storeguard

import (
	"errors"
	"time"
)

// Config groups all engine tuning parameters. [New] starts from
// [DefaultConfig]; [Builder.Build] validates the merged result.
type Config struct {
	Token     TokenConfig
	Password  PasswordConfig
	TOTP      TOTPConfig
	Risk      RiskConfig
	Captcha   CaptchaConfig
	CSRF      CSRFConfig
	Reset     ResetConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
}

// TokenConfig configures the session token issuer.
type TokenConfig struct {
	// Secret is the process-wide HMAC signing key, at least 32 bytes.
	Secret []byte
	// TTL is the fixed session lifetime. Default 7 days.
	TTL time.Duration
	// Issuer is embedded in the token's iss claim.
	Issuer string
}

// PasswordConfig configures credential hashing and password lifecycle.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinEntropyBits is the acceptance floor for new passwords.
	MinEntropyBits float64
	// MaxAge is the freshness horizon; older passwords force a change flow
	// on login. Zero disables the check. Default 90 days.
	MaxAge time.Duration
	// HistoryLimit is how many previous hashes are retained for reuse
	// prevention. Default 5.
	HistoryLimit int
	// UpgradeOnLogin rehashes verified passwords whose digests carry weaker
	// parameters than the current config.
	UpgradeOnLogin bool
}

// TOTPConfig configures second-factor verification.
type TOTPConfig struct {
	Issuer string
	Digits int
	// Period is the time-step size in seconds. Default 30.
	Period int
	// Skew is the tolerance window in steps on each side. Default 2.
	Skew int
	// EnforceReplayProtection rejects codes at or before the last accepted
	// time step for the account.
	EnforceReplayProtection bool
}

// RiskConfig sets the escalation thresholds of the per-account risk state.
type RiskConfig struct {
	// CaptchaThreshold is the failed-attempt count at which every further
	// attempt must pass a captcha first. Default 5.
	CaptchaThreshold int
	// LockThreshold is the failed-attempt count at which the account locks.
	// Default 10.
	LockThreshold int
	// LockDuration is the length of the lock window. Default 10 minutes.
	LockDuration time.Duration
}

// CaptchaMode selects the captcha strategy.
type CaptchaMode string

const (
	// CaptchaLocal serves an arithmetic challenge bound to the session and
	// verified in-process. Needs Redis.
	CaptchaLocal CaptchaMode = "local"
	// CaptchaRemote forwards the response token to an external verification
	// service.
	CaptchaRemote CaptchaMode = "remote"
)

// CaptchaConfig configures the captcha gate.
type CaptchaConfig struct {
	Mode CaptchaMode
	// FailOpen lets an attempt proceed when the captcha backend is
	// unreachable. Keep false in production.
	FailOpen bool
	// ChallengeTTL bounds how long a local challenge stays answerable.
	ChallengeTTL time.Duration

	// Remote verification settings. Secret authenticates this server to the
	// verification service; Timeout bounds the round trip.
	RemoteEndpoint string
	RemoteSecret   string
	RemoteTimeout  time.Duration
	// MinScore rejects low-confidence remote verdicts when the service
	// reports a score. Zero accepts any successful verdict.
	MinScore float64
}

// CSRFConfig configures the anti-forgery guard.
type CSRFConfig struct {
	// Enabled turns the CSRF check in Engine.Login on. Callers that run
	// their own guard in middleware can disable it here.
	Enabled bool
	// TTL bounds how long a session's token stays bound. Should cover the
	// server-side session lifetime. Default 24h.
	TTL time.Duration
}

// ResetConfig configures password reset tokens.
type ResetConfig struct {
	Enabled bool
	// TTL is the reset token lifetime. Default 15 minutes.
	TTL time.Duration
}

// RateLimitConfig configures the fixed-window limiter in front of the
// login pipeline. This is endpoint pressure relief per identifier and IP,
// independent of the per-account risk counter.
type RateLimitConfig struct {
	Enabled          bool
	MaxAttempts      int
	Window           time.Duration
	EnableIPThrottle bool
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking the login path when the
	// buffer is full. Dropped counts are observable via Engine.AuditDropped.
	DropIfFull bool
}

// DefaultConfig returns the configuration [New] starts from. Override
// individual fields rather than constructing a Config from scratch; zero
// TTLs and thresholds are not back-filled.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL:    7 * 24 * time.Hour,
			Issuer: "storeguard",
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinEntropyBits: 60,
			MaxAge:         90 * 24 * time.Hour,
			HistoryLimit:   5,
			UpgradeOnLogin: true,
		},
		TOTP: TOTPConfig{
			Issuer:                  "storeguard",
			Digits:                  6,
			Period:                  30,
			Skew:                    2,
			EnforceReplayProtection: true,
		},
		Risk: RiskConfig{
			CaptchaThreshold: 5,
			LockThreshold:    10,
			LockDuration:     10 * time.Minute,
		},
		Captcha: CaptchaConfig{
			Mode:          CaptchaLocal,
			ChallengeTTL:  10 * time.Minute,
			RemoteTimeout: 5 * time.Second,
		},
		CSRF: CSRFConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Reset: ResetConfig{
			Enabled: true,
			TTL:     15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:          false,
			MaxAttempts:      100,
			Window:           15 * time.Minute,
			EnableIPThrottle: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if len(cfg.Token.Secret) < 32 {
		return errors.New("token secret must be at least 32 bytes")
	}
	if cfg.Token.TTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if cfg.Risk.CaptchaThreshold <= 0 || cfg.Risk.LockThreshold <= cfg.Risk.CaptchaThreshold {
		return errors.New("lock threshold must exceed captcha threshold")
	}
	if cfg.Risk.LockDuration <= 0 {
		return errors.New("lock duration must be positive")
	}
	if cfg.Password.HistoryLimit < 0 {
		return errors.New("password history limit must be >= 0")
	}
	if cfg.TOTP.Period <= 0 || cfg.TOTP.Digits < 6 || cfg.TOTP.Digits > 10 || cfg.TOTP.Skew < 0 {
		return errors.New("invalid totp configuration")
	}
	if cfg.Captcha.Mode != CaptchaLocal && cfg.Captcha.Mode != CaptchaRemote {
		return errors.New("invalid captcha mode")
	}
	if cfg.Captcha.Mode == CaptchaRemote && cfg.Captcha.RemoteEndpoint == "" {
		return errors.New("remote captcha requires an endpoint")
	}
	if cfg.Reset.Enabled && cfg.Reset.TTL <= 0 {
		return errors.New("reset TTL must be positive")
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.MaxAttempts <= 0 || cfg.RateLimit.Window <= 0) {
		return errors.New("invalid rate limit configuration")
	}
	return nil
}
