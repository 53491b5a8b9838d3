package models

import "time"

// LoginOutcome is the single outcome field of a login event.
type LoginOutcome string

const (
	LoginOutcomeSuccess LoginOutcome = "success"
	LoginOutcomeFailure LoginOutcome = "failure"
)

// Failure reasons recorded on login events and audit entries
const (
	FailureReasonInvalidPassword = "invalid_password"
	FailureReasonInvalid2FACode  = "invalid_2fa_code"
	FailureReasonAccountLocked   = "account_locked"
	FailureReasonUnknownAccount  = "unknown_account"
)

// LoginEvent is an immutable record of one concluded login attempt
type LoginEvent struct {
	ID            string       `db:"id"`
	AccountID     string       `db:"account_id"`
	IPAddress     string       `db:"ip_address"`
	UserAgent     string       `db:"user_agent"`
	Outcome       LoginOutcome `db:"outcome"`
	FailureReason *string      `db:"failure_reason"`
	OccurredAt    time.Time    `db:"occurred_at"`
}

// Succeeded reports whether the event records a successful login.
func (e *LoginEvent) Succeeded() bool {
	return e.Outcome == LoginOutcomeSuccess
}

// Signal is a suspicious-activity heuristic that fired for a login
type Signal string

const (
	SignalNewIP         Signal = "new_ip"
	SignalRapidAttempts Signal = "rapid_attempts"
	SignalNewDevice     Signal = "new_device"
)

// SignalStrings converts signals to plain strings for logs and notifications.
func SignalStrings(signals []Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = string(s)
	}
	return out
}
