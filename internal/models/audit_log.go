package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for audit logging
const (
	AuditEventTypeLogin            = "login"
	AuditEventTypeLoginSecondStep  = "login_second_factor"
	AuditEventTypeTwoFactorEnable  = "two_factor_enable"
	AuditEventTypeTwoFactorDisable = "two_factor_disable"
	AuditEventTypeTwoFactorSetup   = "two_factor_setup"
)

// Actions
const (
	AuditActionAuthenticate = "authenticate"
	AuditActionBeginSetup   = "begin_setup"
	AuditActionConfirm      = "confirm"
	AuditActionDisable      = "disable"
)

type AuditLog struct {
	ID            uuid.UUID     `db:"id"`
	EventType     string        `db:"event_type"`
	ActorID       *string       `db:"actor_id"`
	Action        string        `db:"action"`
	Success       bool          `db:"success"`
	FailureReason *string       `db:"failure_reason"`
	IPAddress     *string       `db:"ip_address"`
	UserAgent     *string       `db:"user_agent"`
	Metadata      AuditMetadata `db:"metadata"`
	CreatedAt     time.Time     `db:"created_at"`
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// NewLoginAuditMetadata builds metadata for a login audit entry. Optional
// values are omitted when empty.
func NewLoginAuditMetadata(maskedEmail string, twoFactor bool, failedAttempts int, signals []Signal) AuditMetadata {
	metadata := AuditMetadata{
		"two_factor":      twoFactor,
		"failed_attempts": failedAttempts,
	}
	if maskedEmail != "" {
		metadata["email"] = maskedEmail
	}
	if len(signals) > 0 {
		metadata["signals"] = SignalStrings(signals)
	}
	return metadata
}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}(am))
}
