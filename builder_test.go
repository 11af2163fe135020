package storeguard

import (
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuildRequiresAccountStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, err := New().WithConfig(testConfig()).WithRedis(rdb).WithMailer(&recordingMailer{}).Build()
	if err == nil || !strings.Contains(err.Error(), "account store") {
		t.Fatalf("expected account store error, got %v", err)
	}
}

func TestBuildRequiresTokenSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Token.Secret = nil

	_, err := New().WithConfig(cfg).WithAccountStore(newFakeStore()).Build()
	if err == nil || !strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected token secret error, got %v", err)
	}
}

func TestBuildRequiresRedisForEnabledFeatures(t *testing.T) {
	cfg := testConfig()
	cfg.CSRF.Enabled = true

	_, err := New().
		WithConfig(cfg).
		WithAccountStore(newFakeStore()).
		WithMailer(&recordingMailer{}).
		Build()
	if err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("expected redis requirement error, got %v", err)
	}
}

func TestBuildRequiresMailerForReset(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.Reset.Enabled = true

	_, err := New().WithConfig(cfg).WithRedis(rdb).WithAccountStore(newFakeStore()).Build()
	if err == nil || !strings.Contains(err.Error(), "mailer") {
		t.Fatalf("expected mailer requirement error, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithAccountStore(newFakeStore()).
		WithMailer(&recordingMailer{})

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("a builder must not build twice")
	}
}

func TestValidateConfigThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.LockThreshold = cfg.Risk.CaptchaThreshold

	if err := validateConfig(cfg); err == nil {
		t.Fatal("lock threshold must exceed captcha threshold")
	}

	cfg = testConfig()
	cfg.Captcha.Mode = CaptchaRemote
	if err := validateConfig(cfg); err == nil {
		t.Fatal("remote captcha without an endpoint must be rejected")
	}

	cfg = testConfig()
	cfg.TOTP.Digits = 4
	if err := validateConfig(cfg); err == nil {
		t.Fatal("totp digits below 6 must be rejected")
	}

	if err := validateConfig(testConfig()); err != nil {
		t.Fatalf("base test config must validate, got %v", err)
	}
}
