package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccount_LockedAt(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	assert.False(t, (&Account{}).LockedAt(now))
	assert.True(t, (&Account{LockedUntil: &future}).LockedAt(now))
	assert.False(t, (&Account{LockedUntil: &past}).LockedAt(now))
	assert.False(t, (&Account{LockedUntil: &now}).LockedAt(now), "lock ending exactly now is not in force")
}

func TestAccount_TwoFactorState(t *testing.T) {
	assert.Equal(t, TwoFactorStateDisabled, (&Account{}).TwoFactorState())
	assert.Equal(t, TwoFactorStatePending, (&Account{TwoFactorSecret: []byte{1}}).TwoFactorState())
	assert.Equal(t, TwoFactorStateEnabled, (&Account{TwoFactorSecret: []byte{1}, TwoFactorEnabled: true}).TwoFactorState())
}

func TestAccountLockedError(t *testing.T) {
	now := time.Now()
	err := NewAccountLockedError(now.Add(90*time.Second+time.Millisecond), now)

	assert.True(t, errors.Is(err, ErrAccountLocked))
	assert.Equal(t, 91, err.RetryAfterSeconds())
	assert.Contains(t, err.Error(), "retry in 91s")

	expired := NewAccountLockedError(now.Add(-time.Second), now)
	assert.Equal(t, 0, expired.RetryAfterSeconds())
}
