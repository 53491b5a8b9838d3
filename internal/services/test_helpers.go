package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/BradenHooton/paydesk/internal/background"
	"github.com/BradenHooton/paydesk/internal/models"
	"github.com/BradenHooton/paydesk/internal/notify"
	"github.com/BradenHooton/paydesk/internal/repositories"
)

const (
	testPassword = "correct horse battery staple"
	testSecret   = "JBSWY3DPEHPK3PXP"
	testCode     = "123456"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable time source shared by every component under test
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAccountStore is an in-memory account table. Every method holds the
// lock for its whole read-modify-write, matching the single-statement
// updates of AccountRepository.
type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	err      error // returned by every call when set
	// beforeIncrement runs under the lock ahead of each failure increment
	beforeIncrement func(a *models.Account)
}

func newFakeAccountStore(accounts ...*models.Account) *fakeAccountStore {
	s := &fakeAccountStore{accounts: make(map[string]*models.Account)}
	for _, a := range accounts {
		s.accounts[a.ID] = cloneAccount(a)
	}
	return s
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	if a.LastFailedAttemptAt != nil {
		t := *a.LastFailedAttemptAt
		c.LastFailedAttemptAt = &t
	}
	if a.TwoFactorEnabledAt != nil {
		t := *a.TwoFactorEnabledAt
		c.TwoFactorEnabledAt = &t
	}
	if a.TwoFactorSecret != nil {
		c.TwoFactorSecret = append([]byte(nil), a.TwoFactorSecret...)
	}
	return &c
}

func (s *fakeAccountStore) snapshot(id string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil
	}
	return cloneAccount(a)
}

func (s *fakeAccountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (s *fakeAccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeAccountStore) IncrementFailedAttempts(ctx context.Context, id string, now time.Time, threshold int, lockDuration time.Duration) (*models.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if s.beforeIncrement != nil {
		s.beforeIncrement(a)
	}

	a.FailedAttemptCount++
	at := now
	a.LastFailedAttemptAt = &at

	state := &models.LockoutState{FailedAttemptCount: a.FailedAttemptCount}
	if a.FailedAttemptCount >= threshold && !a.LockedAt(now) {
		until := now.Add(lockDuration)
		a.LockedUntil = &until
		state.NewlyLocked = true
	}
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		state.LockedUntil = &t
	}
	state.LastFailedAttemptAt = &at
	return state, nil
}

func (s *fakeAccountStore) ResetFailedAttempts(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if a, ok := s.accounts[id]; ok {
		a.FailedAttemptCount = 0
		a.LastFailedAttemptAt = nil
	}
	return nil
}

func (s *fakeAccountStore) ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	a, ok := s.accounts[id]
	if !ok || a.LockedUntil == nil || a.LockedUntil.After(now) {
		return false, nil
	}
	a.FailedAttemptCount = 0
	a.LockedUntil = nil
	a.LastFailedAttemptAt = nil
	return true, nil
}

func (s *fakeAccountStore) SetPendingTwoFactorSecret(ctx context.Context, id string, secret []byte, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	a, ok := s.accounts[id]
	if !ok || a.TwoFactorEnabled {
		return false, nil
	}
	a.TwoFactorSecret = append([]byte(nil), secret...)
	return true, nil
}

func (s *fakeAccountStore) EnableTwoFactor(ctx context.Context, id string, expectedSecret []byte, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	a, ok := s.accounts[id]
	if !ok || a.TwoFactorEnabled || string(a.TwoFactorSecret) != string(expectedSecret) {
		return false, nil
	}
	at := now
	a.TwoFactorEnabled = true
	a.TwoFactorEnabledAt = &at
	return true, nil
}

func (s *fakeAccountStore) DisableTwoFactor(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.TwoFactorEnabled = false
	a.TwoFactorSecret = nil
	a.TwoFactorEnabledAt = nil
	return nil
}

// fakeEventStore is an append-only in-memory login_events table
type fakeEventStore struct {
	mu        sync.Mutex
	events    []*models.LoginEvent
	insertErr error
	listErr   error
}

func (s *fakeEventStore) Insert(ctx context.Context, event *models.LoginEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	// TEXT columns reject invalid UTF-8 and NUL (SQLSTATE 22021)
	for _, v := range []string{event.IPAddress, event.UserAgent} {
		if !utf8.ValidString(v) || strings.ContainsRune(v, 0) {
			return fmt.Errorf("%w: invalid byte sequence for encoding UTF8", models.ErrStoreUnavailable)
		}
	}
	event.ID = uuid.NewString()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	stored := *event
	s.events = append(s.events, &stored)
	return nil
}

func (s *fakeEventStore) ListSince(ctx context.Context, q repositories.LoginEventQuery) ([]*models.LoginEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	if q.Limit <= 0 {
		return nil, models.ErrBadRequest
	}

	var out []*models.LoginEvent
	for _, e := range s.events {
		if e.AccountID != q.AccountID || e.OccurredAt.Before(q.Since) || e.ID == q.ExcludeEventID {
			continue
		}
		if q.Outcome != nil && e.Outcome != *q.Outcome {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *fakeEventStore) all() []models.LoginEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LoginEvent, len(s.events))
	for i, e := range s.events {
		out[i] = *e
	}
	return out
}

func (s *fakeEventStore) add(accountID, ip, userAgent string, outcome models.LoginOutcome, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, &models.LoginEvent{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		Outcome:    outcome,
		OccurredAt: at,
	})
}

// fakeChallengeStore mirrors ChallengeRepository, including expiry on read
type fakeChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]models.LoginChallenge
	clock      *fakeClock
	err        error
}

func newFakeChallengeStore(clock *fakeClock) *fakeChallengeStore {
	return &fakeChallengeStore{challenges: make(map[string]models.LoginChallenge), clock: clock}
}

func (s *fakeChallengeStore) Save(ctx context.Context, challenge *models.LoginChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.challenges[challenge.ID] = *challenge
	return nil
}

func (s *fakeChallengeStore) Get(ctx context.Context, id string) (*models.LoginChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.challenges[id]
	if !ok || !c.ExpiresAt.After(s.clock.Now()) {
		return nil, models.ErrInvalidChallenge
	}
	return &c, nil
}

func (s *fakeChallengeStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.challenges[id]
	delete(s.challenges, id)
	return ok, nil
}

func (s *fakeChallengeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// syncRunner runs submitted tasks inline so their effects are visible when
// the call under test returns
type syncRunner struct {
	mu     sync.Mutex
	names  []string
	reject bool
}

func (r *syncRunner) Submit(name string, fn background.Task) bool {
	r.mu.Lock()
	r.names = append(r.names, name)
	reject := r.reject
	r.mu.Unlock()
	if reject {
		return false
	}
	_ = fn(context.Background())
	return true
}

func (r *syncRunner) submitted(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.names {
		if s == name {
			n++
		}
	}
	return n
}

// MockNotifier implements notify.Notifier for testing
type MockNotifier struct {
	mu                     sync.Mutex
	lockedCalls            int
	suspiciousCalls        []notify.SuspiciousActivity
	AccountLockedFunc      func(ctx context.Context, email string, lockedUntil time.Time) error
	SuspiciousActivityFunc func(ctx context.Context, email string, activity notify.SuspiciousActivity) error
}

func (m *MockNotifier) AccountLocked(ctx context.Context, email string, lockedUntil time.Time) error {
	m.mu.Lock()
	m.lockedCalls++
	m.mu.Unlock()
	if m.AccountLockedFunc != nil {
		return m.AccountLockedFunc(ctx, email, lockedUntil)
	}
	return nil
}

func (m *MockNotifier) SuspiciousActivity(ctx context.Context, email string, activity notify.SuspiciousActivity) error {
	m.mu.Lock()
	m.suspiciousCalls = append(m.suspiciousCalls, activity)
	m.mu.Unlock()
	if m.SuspiciousActivityFunc != nil {
		return m.SuspiciousActivityFunc(ctx, email, activity)
	}
	return nil
}

func (m *MockNotifier) lockedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockedCalls
}

func (m *MockNotifier) suspicious() []notify.SuspiciousActivity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.SuspiciousActivity(nil), m.suspiciousCalls...)
}

// recordingAudit keeps every AuditEntry it is given
type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *recordingAudit) Record(ctx context.Context, entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *recordingAudit) last() AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return AuditEntry{}
	}
	return a.entries[len(a.entries)-1]
}

// fakeCodes seals secrets by prefixing them and accepts exactly testCode
type fakeCodes struct {
	generateErr error
	decryptErr  error
}

func (c *fakeCodes) Generate(accountName string) (*models.TwoFactorSetup, error) {
	if c.generateErr != nil {
		return nil, c.generateErr
	}
	return &models.TwoFactorSetup{
		Secret: testSecret,
		URI:    fmt.Sprintf("otpauth://totp/Paydesk:%s?secret=%s", accountName, testSecret),
		QRCode: "data:image/png;base64,AAAA",
	}, nil
}

func (c *fakeCodes) Encrypt(secret string) ([]byte, error) {
	return []byte("sealed:" + secret), nil
}

func (c *fakeCodes) Decrypt(sealed []byte) (string, error) {
	if c.decryptErr != nil {
		return "", c.decryptErr
	}
	return strings.TrimPrefix(string(sealed), "sealed:"), nil
}

func (c *fakeCodes) Verify(secret, code string, now time.Time) bool {
	return secret == testSecret && code == testCode
}

// fakeCredentials treats "hash:"+password as the hash of password
type fakeCredentials struct {
	mu        sync.Mutex
	equalized int
}

func hashFor(password string) string {
	return "hash:" + password
}

func (c *fakeCredentials) Check(hash, password string) bool {
	return password != "" && hash == hashFor(password)
}

func (c *fakeCredentials) Equalize(password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.equalized++
}

type fakeSessions struct {
	err error
}

func (f *fakeSessions) GenerateAccessToken(accountID, email string) (string, time.Time, error) {
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return "token-" + accountID, time.Now().Add(15 * time.Minute), nil
}

type fakeTiming struct {
	mu    sync.Mutex
	waits int
}

func (f *fakeTiming) WaitFrom(ctx context.Context, start time.Time, success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
}

// NewTestAccount returns an account whose password is testPassword
func NewTestAccount(id, email string) *models.Account {
	now := time.Now().UTC()
	return &models.Account{
		ID:           id,
		Email:        email,
		Name:         "Test Holder",
		PasswordHash: hashFor(testPassword),
		Balance:      125000,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestAccountWithTwoFactor returns an account enrolled with testSecret
func NewTestAccountWithTwoFactor(id, email string) *models.Account {
	a := NewTestAccount(id, email)
	enabledAt := a.CreatedAt
	a.TwoFactorSecret = []byte("sealed:" + testSecret)
	a.TwoFactorEnabled = true
	a.TwoFactorEnabledAt = &enabledAt
	return a
}

// authHarness wires a real AuthService, LockoutGuard and detector over the
// in-memory fakes with one shared clock
type authHarness struct {
	service     *AuthService
	guard       *LockoutGuard
	detector    *SuspiciousActivityDetector
	accounts    *fakeAccountStore
	events      *fakeEventStore
	challenges  *fakeChallengeStore
	runner      *syncRunner
	notifier    *MockNotifier
	audit       *recordingAudit
	credentials *fakeCredentials
	timing      *fakeTiming
	clock       *fakeClock
}

func newAuthHarness(accounts ...*models.Account) *authHarness {
	h := &authHarness{
		accounts:    newFakeAccountStore(accounts...),
		events:      &fakeEventStore{},
		runner:      &syncRunner{},
		notifier:    &MockNotifier{},
		audit:       &recordingAudit{},
		credentials: &fakeCredentials{},
		timing:      &fakeTiming{},
		clock:       newFakeClock(),
	}
	h.challenges = newFakeChallengeStore(h.clock)
	logger := newTestLogger()

	h.guard = NewLockoutGuard(h.accounts, h.notifier, h.runner, logger, LockoutConfig{})
	h.guard.now = h.clock.Now
	h.detector = NewSuspiciousActivityDetector(h.events, h.notifier, h.runner, logger, DetectorConfig{})

	h.service = NewAuthService(AuthDependencies{
		Accounts:    h.accounts,
		Events:      h.events,
		Challenges:  h.challenges,
		Lockout:     h.guard,
		Credentials: h.credentials,
		Codes:       &fakeCodes{},
		Detector:    h.detector,
		Sessions:    &fakeSessions{},
		Timing:      h.timing,
		Audit:       h.audit,
		Tasks:       h.runner,
		Logger:      logger,
	})
	h.service.now = h.clock.Now
	return h
}

func (h *authHarness) login(email, password, ip string) (*models.LoginResult, error) {
	return h.loginWithAgent(email, password, ip, "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0")
}

func (h *authHarness) loginWithAgent(email, password, ip, userAgent string) (*models.LoginResult, error) {
	return h.service.Login(context.Background(), models.LoginRequest{
		Email:     email,
		Password:  password,
		IPAddress: ip,
		UserAgent: userAgent,
	})
}

func (h *authHarness) verify(challengeID, code, ip string) (*models.LoginResult, error) {
	return h.service.VerifySecondFactor(context.Background(), models.SecondFactorRequest{
		ChallengeID: challengeID,
		Code:        code,
		IPAddress:   ip,
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
	})
}
