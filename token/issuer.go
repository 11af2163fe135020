// Package token issues and verifies the signed bearer session tokens the
// storefront hands to browsers. Tokens are stateless: subject, issued-at,
// and a fixed expiry, signed with a process-wide secret. There is no
// server-side revocation list; expiry is the only invalidation.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalid is returned by Verify for any malformed, tampered, or expired
// token. Which check failed is deliberately not distinguishable.
var ErrInvalid = errors.New("invalid session token")

// Config holds the issuer settings. Secret is process-wide configuration,
// never request state.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// Issuer signs and verifies session tokens with HMAC-SHA256.
type Issuer struct {
	config Config
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// NewIssuer validates cfg and returns a ready Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	return &Issuer{config: cfg}, nil
}

// Issue signs a token for subject expiring after the configured TTL.
func (i *Issuer) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("empty token subject")
	}

	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.TTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.Secret)
}

// Verify returns the subject of a valid token. It fails closed: signature
// mismatch, wrong algorithm, malformed structure, missing subject, and
// expiry all collapse into ErrInvalid.
func (i *Issuer) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalid
	}

	parsed, err := jwt.ParseWithClaims(
		tokenString,
		&sessionClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return i.config.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(i.config.Issuer),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalid
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalid
	}
	return claims.Subject, nil
}
