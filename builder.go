package storeguard

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/quanvm/storeguard/captcha"
	"github.com/quanvm/storeguard/csrf"
	"github.com/quanvm/storeguard/internal/audit"
	"github.com/quanvm/storeguard/internal/limiters"
	"github.com/quanvm/storeguard/internal/stores"
	"github.com/quanvm/storeguard/password"
	"github.com/quanvm/storeguard/token"
)

const (
	csrfKeyPrefix    = "sg:csrf"
	captchaKeyPrefix = "sg:cap"
	resetKeyPrefix   = "sg:prt"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, and treat the result as immutable.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	mailer    Mailer
	auditSink AuditSink
	verifier  captcha.Verifier

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration. Zero TTLs and thresholds are
// not back-filled; start from New's defaults and override fields instead of
// constructing a Config from scratch.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the Redis client backing CSRF tokens, local captcha
// challenges, reset tokens, and the rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore supplies the persistence boundary. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithMailer supplies the reset mail delivery channel. Required when the
// reset flow is enabled.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink routes audit events to the given sink. Without one, events
// go to a NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithCaptchaVerifier overrides the captcha strategy selected by the
// configuration, for callers bringing their own verification service
// integration.
func (b *Builder) WithCaptchaVerifier(v captcha.Verifier) *Builder {
	b.verifier = v
	return b
}

// Build validates the configuration, wires every component, and returns the
// engine. A Builder can build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	needsRedis := cfg.CSRF.Enabled || cfg.Reset.Enabled || cfg.RateLimit.Enabled ||
		(b.verifier == nil && cfg.Captcha.Mode == CaptchaLocal)
	if needsRedis && b.redis == nil {
		return nil, errors.New("redis client required by the enabled features")
	}
	if cfg.Reset.Enabled && b.mailer == nil {
		return nil, errors.New("mailer required when password reset is enabled")
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	issuer, err := token.NewIssuer(token.Config{
		Secret: cfg.Token.Secret,
		TTL:    cfg.Token.TTL,
		Issuer: cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	verifier := b.verifier
	if verifier == nil {
		switch cfg.Captcha.Mode {
		case CaptchaLocal:
			verifier = captcha.NewLocalChallenger(b.redis, captchaKeyPrefix, cfg.Captcha.ChallengeTTL)
		case CaptchaRemote:
			verifier, err = captcha.NewRemoteVerifier(captcha.RemoteConfig{
				Endpoint: cfg.Captcha.RemoteEndpoint,
				Secret:   cfg.Captcha.RemoteSecret,
				Timeout:  cfg.Captcha.RemoteTimeout,
				MinScore: cfg.Captcha.MinScore,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		mailer:   b.mailer,
		hasher:   hasher,
		tokens:   issuer,
		totp:     newTOTPManager(cfg.TOTP),
		captcha:  verifier,
	}

	if cfg.CSRF.Enabled {
		engine.csrfGuard = csrf.NewGuard(b.redis, csrfKeyPrefix, cfg.CSRF.TTL)
	}
	if cfg.Reset.Enabled {
		engine.resetStore = stores.NewResetStore(b.redis, resetKeyPrefix)
	}
	if cfg.RateLimit.Enabled {
		engine.rateLimiter = limiters.New(b.redis, limiters.Config{
			MaxAttempts:      cfg.RateLimit.MaxAttempts,
			Window:           cfg.RateLimit.Window,
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
		})
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	b.built = true
	return engine, nil
}
