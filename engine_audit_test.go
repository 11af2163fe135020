package storeguard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/quanvm/storeguard/internal/audit"
)

func TestAuditSeverityGrading(t *testing.T) {
	cases := []struct {
		action string
		want   audit.Severity
	}{
		{auditEventAccountLocked, audit.SeverityCritical},
		{auditEventPasswordResetComplete, audit.SeverityCritical},
		{auditEventTOTPEnabled, audit.SeverityCritical},
		{auditEventLoginFailed, audit.SeverityWarning},
		{auditEventCSRFRejected, audit.SeverityWarning},
		{auditEventCaptchaFailed, audit.SeverityWarning},
		{auditEventLoginSuccess, audit.SeverityInfo},
		{auditEventAccountCreated, audit.SeverityInfo},
	}
	for _, tc := range cases {
		if got := auditSeverity(tc.action); got != tc.want {
			t.Fatalf("auditSeverity(%q) = %q, want %q", tc.action, got, tc.want)
		}
	}
}

func TestLoginEmitsAuditTrail(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sink := NewChannelSink(64)
	store := newFakeStore()

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMailer(&recordingMailer{}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	ctx = WithUserAgent(ctx, "test-agent/1.0")

	if _, err := engine.CreateAccount(ctx, CreateAccountInput{
		Handle: testHandle, Email: testEmail, Password: testPassword, DisplayName: "Bob",
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	if _, err := engine.Login(ctx, LoginAttempt{
		Handle: testHandle, Password: "wrong-password", SessionID: "s1", Method: "POST",
	}); err == nil {
		t.Fatal("expected a failed login")
	}
	if _, err := engine.Login(ctx, LoginAttempt{
		Handle: testHandle, Password: testPassword, SessionID: "s1", Method: "POST",
	}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Close flushes the dispatcher before we read the trail.
	engine.Close()

	var actions []string
	var events []AuditEvent
	for {
		select {
		case e := <-sink.Events():
			actions = append(actions, e.Action)
			events = append(events, e)
			continue
		default:
		}
		break
	}

	want := []string{auditEventAccountCreated, auditEventLoginFailed, auditEventLoginSuccess}
	if len(actions) != len(want) {
		t.Fatalf("audit trail %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("audit trail %v, want %v", actions, want)
		}
	}

	for _, e := range events {
		if e.IP != "203.0.113.7" || e.UserAgent != "test-agent/1.0" {
			t.Fatalf("request metadata missing from event %+v", e)
		}
		if e.Timestamp.IsZero() || time.Since(e.Timestamp) > time.Minute {
			t.Fatalf("implausible timestamp on event %+v", e)
		}
	}
}

func TestLockedAttemptAuditsCritical(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sink := NewChannelSink(256)
	store := newFakeStore()

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMailer(&recordingMailer{}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := context.Background()
	account := &Account{
		Handle: testHandle, Email: testEmail, Active: true,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$MDEyMzQ1Njc4OWFiY2RlZg$MDEyMzQ1Njc4OWFiY2RlZg",
	}
	if err := store.Create(ctx, account); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	until := time.Now().Add(5 * time.Minute)
	store.get(t, account.ID).Risk = RiskState{FailedAttempts: 10, CaptchaRequired: true, LockedUntil: &until}

	if _, err := engine.Login(ctx, LoginAttempt{
		Handle: testHandle, Password: testPassword, SessionID: "s1", Method: "POST",
	}); err == nil {
		t.Fatal("expected ErrAccountLocked")
	}
	engine.Close()

	select {
	case e := <-sink.Events():
		if e.Action != auditEventLoginFailed {
			t.Fatalf("action = %q, want %q", e.Action, auditEventLoginFailed)
		}
		if e.Severity != audit.SeverityCritical {
			t.Fatalf("severity = %q, want critical for an attempt while locked", e.Severity)
		}
	default:
		t.Fatal("expected an audit event")
	}

	// Baseline grading for an ordinary failure stays at warning.
	if auditSeverity(auditEventLoginFailed) != audit.SeverityWarning {
		t.Fatal("baseline severity for login_failed should be warning")
	}
}
