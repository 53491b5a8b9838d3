package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		wantValid bool
		violation string
	}{
		{name: "strong password", password: "Settlement#2026", wantValid: true},
		{name: "multiple symbols", password: "Ledger&Batch!42", wantValid: true},
		{name: "too short", password: "Sh0rt!pw", violation: "shorter than"},
		{name: "too long", password: "Aa1!" + strings.Repeat("x", MaxPasswordLen), violation: "longer than"},
		{name: "missing uppercase", password: "settlement#2026", violation: "no uppercase"},
		{name: "missing lowercase", password: "SETTLEMENT#2026", violation: "no lowercase"},
		{name: "missing digit", password: "Settlement#abcd", violation: "no digit"},
		{name: "missing symbol", password: "Settlement2026", violation: "no symbol"},
		{name: "deny listed", password: "Password123!", violation: "deny list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantValid {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrWeakPassword))
			assert.Equal(t, ErrWeakPassword.Error(), err.Error())

			var policyErr *PasswordPolicyError
			require.True(t, errors.As(err, &policyErr))
			assert.Condition(t, func() bool {
				for _, v := range policyErr.Violations {
					if strings.Contains(v, tt.violation) {
						return true
					}
				}
				return false
			}, "violations %v should mention %q", policyErr.Violations, tt.violation)
		})
	}
}

func TestHashAndComparePassword(t *testing.T) {
	password := "Settlement#2026"

	hash, err := HashPasswordWithCost(password, bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	cost, err := HashCost(hash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	assert.NoError(t, ComparePassword(hash, password))
	assert.Error(t, ComparePassword(hash, "Settlement#2027"))
}

func TestHashPasswordWithCost_Rejects(t *testing.T) {
	_, err := HashPasswordWithCost("", bcrypt.MinCost)
	assert.Error(t, err, "empty password")

	_, err = HashPasswordWithCost("Settlement#2026", bcrypt.MaxCost+1)
	assert.Error(t, err, "cost above bcrypt.MaxCost")

	_, err = HashPasswordWithCost("Settlement#2026", bcrypt.MinCost-1)
	assert.Error(t, err, "cost below bcrypt.MinCost")
}
