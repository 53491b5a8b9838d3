package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrStoreUnavailable marks infrastructure failures (database, cache).
	// Callers should retry rather than report a credential problem.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Login outcomes
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrInvalidChallenge   = errors.New("login challenge is invalid or expired")

	// Second factor outcomes
	ErrInvalidCode             = errors.New("invalid one-time code")
	ErrNotInSetup              = errors.New("two-factor setup has not been started")
	ErrInvalidPassword         = errors.New("invalid password")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication is already enabled")
)

// AccountLockedError carries the remaining lock time for user feedback.
// errors.Is(err, ErrAccountLocked) holds for it.
type AccountLockedError struct {
	LockedUntil time.Time
	Remaining   time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("%s: retry in %ds", ErrAccountLocked.Error(), e.RetryAfterSeconds())
}

func (e *AccountLockedError) Unwrap() error {
	return ErrAccountLocked
}

// RetryAfterSeconds rounds the remaining lock time up to whole seconds.
func (e *AccountLockedError) RetryAfterSeconds() int {
	if e.Remaining <= 0 {
		return 0
	}
	return int(math.Ceil(e.Remaining.Seconds()))
}

// NewAccountLockedError builds the lock error for a lock expiring at lockedUntil.
func NewAccountLockedError(lockedUntil, now time.Time) *AccountLockedError {
	remaining := lockedUntil.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return &AccountLockedError{LockedUntil: lockedUntil, Remaining: remaining}
}
