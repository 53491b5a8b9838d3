package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredLockClearer removes every lock whose expiry has passed
type ExpiredLockClearer interface {
	ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error)
}

// LockSweeper periodically clears expired account locks. Logins clear their
// own account's expired lock on access, so the sweep only tidies accounts
// that have not been seen since their lock ran out.
type LockSweeper struct {
	accounts ExpiredLockClearer
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	now      func() time.Time
}

func NewLockSweeper(accounts ExpiredLockClearer, logger *slog.Logger, interval time.Duration) *LockSweeper {
	return &LockSweeper{
		accounts: accounts,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start runs a sweep immediately and then every interval until Stop or ctx
func (s *LockSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopCh:
			s.logger.Info("lock sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("lock sweeper context cancelled")
			return
		}
	}
}

func (s *LockSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cleared, err := s.accounts.ClearExpiredLocks(sweepCtx, s.now().UTC())
	if err != nil {
		s.logger.Error("failed to clear expired locks", slog.Any("error", err))
		return
	}
	if cleared > 0 {
		s.logger.Info("expired account locks cleared", slog.Int64("accounts", cleared))
	}
}

// Stop signals the sweeper to stop
func (s *LockSweeper) Stop() {
	close(s.stopCh)
}
