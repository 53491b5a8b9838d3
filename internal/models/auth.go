package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims carried by an issued session token
type TokenClaims struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// LoginStatus distinguishes a completed login from one waiting on a second factor
type LoginStatus string

const (
	LoginStatusAuthenticated        LoginStatus = "authenticated"
	LoginStatusRequiresSecondFactor LoginStatus = "requires_second_factor"
)

// LoginRequest is a password login attempt
type LoginRequest struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// SecondFactorRequest completes a login that returned RequiresSecondFactor
type SecondFactorRequest struct {
	ChallengeID string
	Code        string
	IPAddress   string
	UserAgent   string
}

// LoginResult is the outcome of a login step that did not fail.
// RequiresSecondFactor is an intermediate success, not an error.
type LoginResult struct {
	Status             LoginStatus     `json:"status"`
	ChallengeID        string          `json:"challenge_id,omitempty"`
	ChallengeExpiresAt *time.Time      `json:"challenge_expires_at,omitempty"`
	AccessToken        string          `json:"access_token,omitempty"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`
	Account            *AccountSummary `json:"account,omitempty"`
}

// RequestOrigin is the client address and user agent recorded with
// enrollment audit entries
type RequestOrigin struct {
	IPAddress string
	UserAgent string
}
