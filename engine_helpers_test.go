package storeguard

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/quanvm/storeguard/password"
)

func mustHasher(t *testing.T, cfg PasswordConfig) *password.Hasher {
	t.Helper()
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return hasher
}

const (
	testHandle   = "bob"
	testEmail    = "bob@example.com"
	testPassword = "correct-horse-battery-staple"
)

// fakeStore is an in-memory AccountStore for engine tests.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	history  map[string][]string
	nextID   int

	failAll bool // force backend errors
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]*Account),
		history:  make(map[string][]string),
	}
}

var errFakeBackend = redis.ErrClosed

func (s *fakeStore) FindByHandle(_ context.Context, handle string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errFakeBackend
	}
	for _, a := range s.accounts {
		if a.Handle == handle {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errFakeBackend
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errFakeBackend
	}
	for _, a := range s.accounts {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *fakeStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errFakeBackend
	}
	for _, a := range s.accounts {
		if a.Handle == account.Handle || a.Email == account.Email {
			return ErrAccountExists
		}
	}
	s.nextID++
	account.ID = "u" + strconv.Itoa(s.nextID)
	copied := *account
	s.accounts[account.ID] = &copied
	return nil
}

func (s *fakeStore) UpdatePasswordHash(_ context.Context, id, hash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = hash
	a.PasswordChangedAt = changedAt
	return nil
}

func (s *fakeStore) UpdateRiskState(_ context.Context, id string, apply func(RiskState) RiskState) (RiskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return RiskState{}, errFakeBackend
	}
	a, ok := s.accounts[id]
	if !ok {
		return RiskState{}, ErrAccountNotFound
	}
	a.Risk = apply(a.Risk)
	return a.Risk, nil
}

func (s *fakeStore) SetTOTP(_ context.Context, id string, secret []byte, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.TOTPSecret = secret
	a.TOTPEnabled = enabled
	if !enabled {
		a.TOTPLastCounter = 0
	}
	return nil
}

func (s *fakeStore) UpdateTOTPLastCounter(_ context.Context, id string, counter int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.TOTPLastCounter = counter
	return nil
}

func (s *fakeStore) RecordPasswordHistory(_ context.Context, id, hash string, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append([]string{hash}, s.history[id]...)
	if len(entries) > max {
		entries = entries[:max]
	}
	s.history[id] = entries
	return nil
}

func (s *fakeStore) PasswordHistory(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.history[id]))
	copy(out, s.history[id])
	return out, nil
}

// get returns the live account record for direct assertions and mutation.
func (s *fakeStore) get(t *testing.T, id string) *Account {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		t.Fatalf("account %q not in fake store", id)
	}
	return a
}

// recordingMailer captures reset tokens instead of sending them.
type recordingMailer struct {
	mu     sync.Mutex
	tokens []string
	fail   bool
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, _, resetToken, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errFakeBackend
	}
	m.tokens = append(m.tokens, resetToken)
	return nil
}

func (m *recordingMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tokens) == 0 {
		t.Fatal("no reset token was delivered")
	}
	return m.tokens[len(m.tokens)-1]
}

// testConfig returns a config with cheap hash parameters and a fixed secret.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.MinEntropyBits = 40
	cfg.CSRF.Enabled = false
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *fakeStore
	mailer *recordingMailer
	redis  *miniredis.Miniredis
}

// newTestEngine builds an engine on miniredis and the fake store, seeded
// with one active account. mutate adjusts the config before Build.
func newTestEngine(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := newFakeStore()
	mailer := &recordingMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.CreateAccount(context.Background(), CreateAccountInput{
		Handle:      testHandle,
		Email:       testEmail,
		Password:    testPassword,
		DisplayName: "Bob",
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	return &testEnv{engine: engine, store: store, mailer: mailer, redis: mr}
}

func (env *testEnv) accountID(t *testing.T) string {
	t.Helper()
	account, err := env.store.FindByHandle(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("seed account lookup: %v", err)
	}
	return account.ID
}

func (env *testEnv) attempt(password string) LoginAttempt {
	return LoginAttempt{
		Handle:    testHandle,
		Password:  password,
		SessionID: "sess-1",
		Method:    "POST",
	}
}

// solveCaptcha issues a local challenge and computes the answer.
func (env *testEnv) solveCaptcha(t *testing.T, sessionID string) string {
	t.Helper()
	question, err := env.engine.IssueCaptchaChallenge(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("IssueCaptchaChallenge: %v", err)
	}
	return solveArithmetic(t, question)
}

func solveArithmetic(t *testing.T, question string) string {
	t.Helper()
	var a, b int
	var op string
	if _, err := fmt.Sscanf(question, "What is %d %s %d?", &a, &op, &b); err != nil {
		t.Fatalf("unexpected captcha question %q: %v", question, err)
	}
	if op == "+" {
		return strconv.Itoa(a + b)
	}
	return strconv.Itoa(a - b)
}
