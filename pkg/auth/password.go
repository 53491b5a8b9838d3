package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLen = 12
	MaxPasswordLen = 128
)

// ErrWeakPassword is returned by ValidatePassword. The failed rules are
// available through PasswordPolicyError.
var ErrWeakPassword = errors.New("password does not meet policy")

// PasswordPolicyError lists the rules a candidate password broke. Error()
// stays generic so callers can surface it without leaking the policy.
type PasswordPolicyError struct {
	Violations []string
}

func (e *PasswordPolicyError) Error() string {
	return ErrWeakPassword.Error()
}

func (e *PasswordPolicyError) Unwrap() error {
	return ErrWeakPassword
}

var deniedPasswords = map[string]struct{}{
	"password1234":  {},
	"password123!":  {},
	"qwertyuiop12":  {},
	"letmein12345":  {},
	"welcome12345":  {},
	"administrator": {},
	"changeme1234":  {},
	"paydesk12345":  {},
}

// HashPasswordWithCost hashes password with bcrypt at the given cost.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword returns nil when password matches the stored hash.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// HashCost reports the bcrypt cost a stored hash was created with.
func HashCost(hashedPassword string) (int, error) {
	return bcrypt.Cost([]byte(hashedPassword))
}

// ValidatePassword applies the operator password policy used when
// provisioning accounts.
func ValidatePassword(password string) error {
	var violations []string

	switch n := len(password); {
	case n < MinPasswordLen:
		violations = append(violations, fmt.Sprintf("shorter than %d characters", MinPasswordLen))
	case n > MaxPasswordLen:
		violations = append(violations, fmt.Sprintf("longer than %d characters", MaxPasswordLen))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper {
		violations = append(violations, "no uppercase letter")
	}
	if !lower {
		violations = append(violations, "no lowercase letter")
	}
	if !digit {
		violations = append(violations, "no digit")
	}
	if !symbol {
		violations = append(violations, "no symbol")
	}

	if _, denied := deniedPasswords[strings.ToLower(password)]; denied {
		violations = append(violations, "on the deny list")
	}

	if len(violations) > 0 {
		return &PasswordPolicyError{Violations: violations}
	}
	return nil
}
