package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/paydesk/internal/metrics"
	"github.com/BradenHooton/paydesk/internal/models"
	"github.com/BradenHooton/paydesk/internal/notify"
)

// Lockout defaults
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// LockoutRepository is the subset of AccountRepository that mutates the
// lockout fields. Each method is a single atomic statement.
type LockoutRepository interface {
	IncrementFailedAttempts(ctx context.Context, id string, now time.Time, threshold int, lockDuration time.Duration) (*models.LockoutState, error)
	ResetFailedAttempts(ctx context.Context, id string, now time.Time) error
	ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error)
}

type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// LockoutGuard decides whether an account is locked and maintains its
// failure counter
type LockoutGuard struct {
	repo     LockoutRepository
	notifier notify.Notifier
	tasks    TaskRunner
	logger   *slog.Logger
	cfg      LockoutConfig
	now      func() time.Time
}

func NewLockoutGuard(repo LockoutRepository, notifier notify.Notifier, tasks TaskRunner, logger *slog.Logger, cfg LockoutConfig) *LockoutGuard {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultLockoutThreshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultLockoutDuration
	}
	return &LockoutGuard{
		repo:     repo,
		notifier: notifier,
		tasks:    tasks,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// IsLocked reports whether the lock on account is still in force and how long
// remains. A lock that has run out is cleared along with the counter, and
// account is updated to match.
func (g *LockoutGuard) IsLocked(ctx context.Context, account *models.Account) (bool, time.Duration, error) {
	if account.LockedUntil == nil {
		return false, 0, nil
	}

	now := g.now()
	if account.LockedAt(now) {
		return true, account.LockedUntil.Sub(now), nil
	}

	cleared, err := g.repo.ClearExpiredLock(ctx, account.ID, now)
	if err != nil {
		return false, 0, storeError("clear expired lock", err)
	}
	if cleared {
		g.logger.Info("expired account lock cleared", slog.String("account_id", account.ID))
	}

	account.FailedAttemptCount = 0
	account.LockedUntil = nil
	account.LastFailedAttemptAt = nil
	return false, 0, nil
}

// RecordFailure counts one failed attempt. When this failure reaches the
// threshold the account is locked in the same statement and the holder is
// notified in the background.
func (g *LockoutGuard) RecordFailure(ctx context.Context, account *models.Account, reason string) (*models.LockoutState, error) {
	state, err := g.repo.IncrementFailedAttempts(ctx, account.ID, g.now(), g.cfg.Threshold, g.cfg.Duration)
	if err != nil {
		return nil, storeError("record failed attempt", err)
	}

	account.FailedAttemptCount = state.FailedAttemptCount
	account.LockedUntil = state.LockedUntil
	account.LastFailedAttemptAt = state.LastFailedAttemptAt

	g.logger.Info("failed login attempt recorded",
		slog.String("account_id", account.ID),
		slog.String("reason", reason),
		slog.Int("failed_attempts", state.FailedAttemptCount),
	)

	if state.NewlyLocked && state.LockedUntil != nil {
		metrics.RecordAccountLockout()
		g.logger.Warn("account locked",
			slog.String("account_id", account.ID),
			slog.Time("locked_until", *state.LockedUntil),
		)

		email, lockedUntil := account.Email, *state.LockedUntil
		g.tasks.Submit(taskNotifyAccountLocked, func(ctx context.Context) error {
			return g.notifier.AccountLocked(ctx, email, lockedUntil)
		})
	}

	return state, nil
}

// RecordSuccess resets the failure counter. It never clears a lock.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, account *models.Account) error {
	if err := g.repo.ResetFailedAttempts(ctx, account.ID, g.now()); err != nil {
		return storeError("reset failed attempts", err)
	}
	account.FailedAttemptCount = 0
	account.LastFailedAttemptAt = nil
	return nil
}
