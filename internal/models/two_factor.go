package models

import (
	"time"
)

// TwoFactorState is the enrollment lifecycle state of an account's second factor
type TwoFactorState string

const (
	TwoFactorStateDisabled TwoFactorState = "disabled"
	TwoFactorStatePending  TwoFactorState = "pending"
	TwoFactorStateEnabled  TwoFactorState = "enabled"
)

// TwoFactorSetup is returned exactly once, when setup begins. It is the only
// place the plaintext secret ever leaves the service.
type TwoFactorSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`     // otpauth:// provisioning URI
	QRCode string `json:"qr_code"` // PNG data URL of URI
}

// TwoFactorStatus reports enrollment state without exposing the secret
type TwoFactorStatus struct {
	State     TwoFactorState `json:"state"`
	EnabledAt *time.Time     `json:"enabled_at,omitempty"`
}

// LoginChallenge is the pending second-factor step of a login. Its ID is the
// opaque reference handed to the client in place of an account identifier.
type LoginChallenge struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
