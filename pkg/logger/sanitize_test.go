package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "a****@*******.com", SanitizedEmail("alice@example.com"))
	assert.Equal(t, "b@****.io", SanitizedEmail("b@corp.io"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("not-an-email"))
}

func TestRedact_ReplacesSensitiveKeys(t *testing.T) {
	in := map[string]interface{}{
		"password":      "hunter2",
		"totp_secret":   "JBSWY3DPEHPK3PXP",
		"one_time_code": "123456",
		"ip_address":    "203.0.113.7",
		"nested": map[string]interface{}{
			"access_token": "eyJ...",
			"device":       "firefox",
		},
	}

	out := Redact(in)

	assert.Equal(t, RedactedPlaceholder, out["password"])
	assert.Equal(t, RedactedPlaceholder, out["totp_secret"])
	assert.Equal(t, RedactedPlaceholder, out["one_time_code"])
	assert.Equal(t, "203.0.113.7", out["ip_address"])

	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, RedactedPlaceholder, nested["access_token"])
	assert.Equal(t, "firefox", nested["device"])

	// input untouched
	assert.Equal(t, "hunter2", in["password"])
	assert.Nil(t, Redact(nil))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("challenge_id=abc"))
	assert.True(t, SanitizeQueryString("token=abc"))
	assert.False(t, SanitizeQueryString("page=2"))
}

func TestAuditLogger_NeverSeesPlaintextWhenRedacted(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogTwoFactorChange(context.Background(), AuditEvent{
		EventType: "two_factor_setup",
		AccountID: "acc-1",
		Success:   true,
		Metadata:  Redact(map[string]interface{}{"secret": "JBSWY3DPEHPK3PXP"}),
	})

	assert.Contains(t, buf.String(), RedactedPlaceholder)
	assert.NotContains(t, buf.String(), "JBSWY3DPEHPK3PXP")
	assert.Contains(t, buf.String(), `"audit_type":"two_factor"`)
}
