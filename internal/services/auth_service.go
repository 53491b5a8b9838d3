package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/paydesk/internal/metrics"
	"github.com/BradenHooton/paydesk/internal/models"
	pkghttp "github.com/BradenHooton/paydesk/pkg/http"
	pkglogger "github.com/BradenHooton/paydesk/pkg/logger"
)

// DefaultChallengeTTL bounds the time between the password step and the code step
const DefaultChallengeTTL = 5 * time.Minute

// AccountReader loads accounts for the login flow
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

// ChallengeStore holds pending second-factor logins
type ChallengeStore interface {
	Save(ctx context.Context, challenge *models.LoginChallenge) error
	Get(ctx context.Context, id string) (*models.LoginChallenge, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// LockoutPolicy is implemented by *LockoutGuard
type LockoutPolicy interface {
	IsLocked(ctx context.Context, account *models.Account) (bool, time.Duration, error)
	RecordFailure(ctx context.Context, account *models.Account, reason string) (*models.LockoutState, error)
	RecordSuccess(ctx context.Context, account *models.Account) error
}

// ActivityDetector is implemented by *SuspiciousActivityDetector
type ActivityDetector interface {
	Detect(ctx context.Context, in DetectionInput) ([]models.Signal, error)
}

// SessionIssuer is implemented by *auth.TokenManager
type SessionIssuer interface {
	GenerateAccessToken(accountID, email string) (string, time.Time, error)
}

// TimingEqualizer is implemented by *auth.TimingDelay
type TimingEqualizer interface {
	WaitFrom(ctx context.Context, start time.Time, success bool)
}

// AuthDependencies wires the login orchestrator. Timing may be nil.
type AuthDependencies struct {
	Accounts     AccountReader
	Events       LoginEventRepository
	Challenges   ChallengeStore
	Lockout      LockoutPolicy
	Credentials  CredentialChecker
	Codes        OneTimeCodes
	Detector     ActivityDetector
	Sessions     SessionIssuer
	Timing       TimingEqualizer
	Audit        AuditRecorder
	Tasks        TaskRunner
	Logger       *slog.Logger
	ChallengeTTL time.Duration
}

// AuthService sequences a login: lock check, password, optional second
// factor, then counter reset, event, detection and session issue
type AuthService struct {
	deps AuthDependencies
	now  func() time.Time
}

func NewAuthService(deps AuthDependencies) *AuthService {
	if deps.ChallengeTTL <= 0 {
		deps.ChallengeTTL = DefaultChallengeTTL
	}
	return &AuthService{deps: deps, now: time.Now}
}

// cleanOrigin makes the request origin storable, so a hostile header cannot
// fail the login event insert after the failure counter has moved
func cleanOrigin(ip, userAgent string) (string, string) {
	return pkghttp.CleanText(ip), pkghttp.CleanUserAgent(userAgent)
}

type attempt struct {
	account   *models.Account
	ipAddress string
	userAgent string
	eventType string
	start     time.Time
}

// Login runs the password step. Accounts with two-factor enabled get a
// RequiresSecondFactor result and no event or counter change.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	start := time.Now()
	req.IPAddress, req.UserAgent = cleanOrigin(req.IPAddress, req.UserAgent)
	email := strings.TrimSpace(req.Email)

	account, err := s.deps.Accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, storeError("load account", err)
		}
		// same work and delay as a wrong password
		s.deps.Credentials.Equalize(req.Password)
		s.deps.Audit.Record(ctx, AuditEntry{
			EventType:     models.AuditEventTypeLogin,
			Action:        models.AuditActionAuthenticate,
			FailureReason: models.FailureReasonUnknownAccount,
			IPAddress:     req.IPAddress,
			UserAgent:     req.UserAgent,
			Metadata:      models.NewLoginAuditMetadata(pkglogger.SanitizedEmail(email), false, 0, nil),
		})
		metrics.RecordLogin(metrics.LoginFailure)
		s.wait(ctx, start)
		return nil, models.ErrInvalidCredentials
	}

	at := attempt{
		account:   account,
		ipAddress: req.IPAddress,
		userAgent: req.UserAgent,
		eventType: models.AuditEventTypeLogin,
		start:     start,
	}

	locked, remaining, err := s.deps.Lockout.IsLocked(ctx, account)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, s.rejectLocked(ctx, at, remaining)
	}

	if !s.deps.Credentials.Check(account.PasswordHash, req.Password) {
		return nil, s.rejectAttempt(ctx, at, models.FailureReasonInvalidPassword, models.ErrInvalidCredentials)
	}

	if account.TwoFactorEnabled {
		return s.issueChallenge(ctx, at)
	}

	return s.completeLogin(ctx, at)
}

// VerifySecondFactor completes a login that returned RequiresSecondFactor.
// A wrong code counts as a failed attempt and keeps the challenge for retry.
func (s *AuthService) VerifySecondFactor(ctx context.Context, req models.SecondFactorRequest) (*models.LoginResult, error) {
	start := time.Now()
	req.IPAddress, req.UserAgent = cleanOrigin(req.IPAddress, req.UserAgent)

	challenge, err := s.deps.Challenges.Get(ctx, req.ChallengeID)
	if err != nil {
		if errors.Is(err, models.ErrInvalidChallenge) {
			metrics.RecordLogin(metrics.LoginFailure)
			s.wait(ctx, start)
			return nil, models.ErrInvalidChallenge
		}
		return nil, storeError("load login challenge", err)
	}

	account, err := s.deps.Accounts.GetByID(ctx, challenge.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.discardChallenge(ctx, challenge.ID)
			return nil, models.ErrInvalidChallenge
		}
		return nil, storeError("load account", err)
	}

	at := attempt{
		account:   account,
		ipAddress: req.IPAddress,
		userAgent: req.UserAgent,
		eventType: models.AuditEventTypeLoginSecondStep,
		start:     start,
	}

	locked, remaining, err := s.deps.Lockout.IsLocked(ctx, account)
	if err != nil {
		return nil, err
	}
	if locked {
		s.discardChallenge(ctx, challenge.ID)
		return nil, s.rejectLocked(ctx, at, remaining)
	}

	if !account.TwoFactorEnabled {
		// disabled between the two steps
		s.discardChallenge(ctx, challenge.ID)
		return nil, models.ErrInvalidChallenge
	}

	secret, err := s.deps.Codes.Decrypt(account.TwoFactorSecret)
	if err != nil {
		return nil, fmt.Errorf("open two-factor secret: %w", err)
	}

	if !s.deps.Codes.Verify(secret, req.Code, s.now()) {
		metrics.RecordTwoFactorEvent("verify", false)
		err := s.rejectAttempt(ctx, at, models.FailureReasonInvalid2FACode, models.ErrInvalidCode)
		if errors.Is(err, models.ErrAccountLocked) {
			s.discardChallenge(ctx, challenge.ID)
		}
		return nil, err
	}

	consumed, err := s.deps.Challenges.Delete(ctx, challenge.ID)
	if err != nil {
		return nil, storeError("consume login challenge", err)
	}
	if !consumed {
		// another request completed this challenge first
		return nil, models.ErrInvalidChallenge
	}

	metrics.RecordTwoFactorEvent("verify", true)
	return s.completeLogin(ctx, at)
}

func (s *AuthService) issueChallenge(ctx context.Context, at attempt) (*models.LoginResult, error) {
	now := s.now().UTC()
	challenge := &models.LoginChallenge{
		ID:        uuid.NewString(),
		AccountID: at.account.ID,
		IPAddress: at.ipAddress,
		UserAgent: at.userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.deps.ChallengeTTL),
	}
	if err := s.deps.Challenges.Save(ctx, challenge); err != nil {
		return nil, storeError("save login challenge", err)
	}

	metrics.RecordLogin(metrics.LoginSecondFactorRequired)
	return &models.LoginResult{
		Status:             models.LoginStatusRequiresSecondFactor,
		ChallengeID:        challenge.ID,
		ChallengeExpiresAt: &challenge.ExpiresAt,
	}, nil
}

func (s *AuthService) completeLogin(ctx context.Context, at attempt) (*models.LoginResult, error) {
	if err := s.deps.Lockout.RecordSuccess(ctx, at.account); err != nil {
		return nil, err
	}

	event, err := s.writeEvent(ctx, at, models.LoginOutcomeSuccess, "")
	if err != nil {
		return nil, err
	}

	s.scheduleDetection(at, event)

	token, expiresAt, err := s.deps.Sessions.GenerateAccessToken(at.account.ID, at.account.Email)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.deps.Audit.Record(ctx, AuditEntry{
		EventType: at.eventType,
		AccountID: at.account.ID,
		Action:    models.AuditActionAuthenticate,
		Success:   true,
		IPAddress: at.ipAddress,
		UserAgent: at.userAgent,
		Metadata:  models.NewLoginAuditMetadata("", at.account.TwoFactorEnabled, 0, nil),
	})
	metrics.RecordLogin(metrics.LoginSuccess)

	return &models.LoginResult{
		Status:      models.LoginStatusAuthenticated,
		AccessToken: token,
		ExpiresAt:   &expiresAt,
		Account:     at.account.Summary(),
	}, nil
}

// rejectAttempt counts a failure, records it and returns failure, or an
// AccountLockedError if the account is locked once the failure is counted
func (s *AuthService) rejectAttempt(ctx context.Context, at attempt, reason string, failure error) error {
	state, err := s.deps.Lockout.RecordFailure(ctx, at.account, reason)
	if err != nil {
		return err
	}
	if _, err := s.writeEvent(ctx, at, models.LoginOutcomeFailure, reason); err != nil {
		return err
	}

	s.deps.Audit.Record(ctx, AuditEntry{
		EventType:     at.eventType,
		AccountID:     at.account.ID,
		Action:        models.AuditActionAuthenticate,
		FailureReason: reason,
		IPAddress:     at.ipAddress,
		UserAgent:     at.userAgent,
		Metadata:      models.NewLoginAuditMetadata("", at.account.TwoFactorEnabled, state.FailedAttemptCount, nil),
	})

	// The lock may have been set by this failure or by a concurrent one
	if now := s.now(); state.LockedUntil != nil && state.LockedUntil.After(now) {
		metrics.RecordLogin(metrics.LoginLocked)
		s.wait(ctx, at.start)
		return models.NewAccountLockedError(*state.LockedUntil, now)
	}

	metrics.RecordLogin(metrics.LoginFailure)
	s.wait(ctx, at.start)
	return failure
}

// rejectLocked records a refused attempt on a locked account. The password
// and code are not examined.
func (s *AuthService) rejectLocked(ctx context.Context, at attempt, remaining time.Duration) error {
	if _, err := s.writeEvent(ctx, at, models.LoginOutcomeFailure, models.FailureReasonAccountLocked); err != nil {
		return err
	}

	s.deps.Audit.Record(ctx, AuditEntry{
		EventType:     at.eventType,
		AccountID:     at.account.ID,
		Action:        models.AuditActionAuthenticate,
		FailureReason: models.FailureReasonAccountLocked,
		IPAddress:     at.ipAddress,
		UserAgent:     at.userAgent,
		Metadata:      models.NewLoginAuditMetadata("", at.account.TwoFactorEnabled, at.account.FailedAttemptCount, nil),
	})
	metrics.RecordLogin(metrics.LoginLocked)

	lockErr := &models.AccountLockedError{Remaining: remaining}
	if at.account.LockedUntil != nil {
		lockErr.LockedUntil = *at.account.LockedUntil
	}
	return lockErr
}

func (s *AuthService) writeEvent(ctx context.Context, at attempt, outcome models.LoginOutcome, reason string) (*models.LoginEvent, error) {
	event := &models.LoginEvent{
		AccountID:     at.account.ID,
		IPAddress:     at.ipAddress,
		UserAgent:     at.userAgent,
		Outcome:       outcome,
		FailureReason: strPtr(reason),
		OccurredAt:    s.now().UTC(),
	}
	if err := s.deps.Events.Insert(ctx, event); err != nil {
		return nil, storeError("write login event", err)
	}
	return event, nil
}

func (s *AuthService) scheduleDetection(at attempt, event *models.LoginEvent) {
	if s.deps.Detector == nil {
		return
	}
	snapshot := *at.account
	input := DetectionInput{
		Account:        &snapshot,
		IPAddress:      at.ipAddress,
		UserAgent:      at.userAgent,
		At:             event.OccurredAt,
		ExcludeEventID: event.ID,
	}
	s.deps.Tasks.Submit(taskDetectSuspicious, func(ctx context.Context) error {
		_, err := s.deps.Detector.Detect(ctx, input)
		return err
	})
}

func (s *AuthService) discardChallenge(ctx context.Context, id string) {
	if _, err := s.deps.Challenges.Delete(ctx, id); err != nil {
		s.deps.Logger.Warn("failed to discard login challenge", slog.Any("error", err))
	}
}

func (s *AuthService) wait(ctx context.Context, start time.Time) {
	if s.deps.Timing != nil {
		s.deps.Timing.WaitFrom(ctx, start, false)
	}
}
