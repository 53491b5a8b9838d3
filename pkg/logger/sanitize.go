package logger

import (
	"strings"
)

// RedactedPlaceholder replaces every sensitive value handed to audit sinks
const RedactedPlaceholder = "[REDACTED]"

var sensitiveKeyFragments = []string{
	"password",
	"secret",
	"token",
	"code",
	"otp",
	"api_key",
	"apikey",
}

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	username := parts[0]
	domain := parts[1]

	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	// Mask all but the TLD
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// IsSensitiveKey reports whether a metadata key names a credential or secret
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(k, fragment) {
			return true
		}
	}
	return false
}

// Redact returns a copy of metadata with sensitive values replaced by
// RedactedPlaceholder. Nested maps are redacted recursively; the input is
// never modified.
func Redact(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}

	out := make(map[string]interface{}, len(metadata))
	for key, val := range metadata {
		if IsSensitiveKey(key) {
			out[key] = RedactedPlaceholder
			continue
		}
		if nested, ok := val.(map[string]interface{}); ok {
			out[key] = Redact(nested)
			continue
		}
		out[key] = val
	}
	return out
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	if strings.Contains(query, "email") || strings.Contains(query, "challenge") {
		return true
	}
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(query, fragment) {
			return true
		}
	}
	return false
}
