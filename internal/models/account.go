package models

import (
	"time"
)

// Account is an administrative console account together with its mutable
// security fields. The security fields are only changed through atomic
// repository updates, never by saving a modified copy of the struct.
type Account struct {
	ID                  string
	Email               string
	Name                string
	PasswordHash        string
	Balance             int64 // minor units
	FailedAttemptCount  int
	LockedUntil         *time.Time
	LastFailedAttemptAt *time.Time
	TwoFactorSecret     []byte // AES-256-GCM nonce||ciphertext, never plaintext
	TwoFactorEnabled    bool
	TwoFactorEnabledAt  *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LockedAt reports whether the account lock is still in force at now.
func (a *Account) LockedAt(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// TwoFactorState derives the enrollment state from the stored fields.
func (a *Account) TwoFactorState() TwoFactorState {
	switch {
	case a.TwoFactorEnabled:
		return TwoFactorStateEnabled
	case len(a.TwoFactorSecret) > 0:
		return TwoFactorStatePending
	default:
		return TwoFactorStateDisabled
	}
}

// Summary returns the minimal account data handed back on a successful login.
func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		ID:               a.ID,
		Email:            a.Email,
		Name:             a.Name,
		TwoFactorEnabled: a.TwoFactorEnabled,
	}
}

// AccountSummary is the account view exposed to callers of the login flow
type AccountSummary struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

// LockoutState is the post-update view of the lockout counters returned by
// the atomic failure increment.
type LockoutState struct {
	FailedAttemptCount  int
	LockedUntil         *time.Time
	LastFailedAttemptAt *time.Time
	NewlyLocked         bool // this increment crossed the threshold
}
