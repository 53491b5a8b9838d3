//go:build integration

package integration

import (
	"fmt"
	"time"
)

const (
	testPassword   = "Settlement#2026"
	knownIP        = "198.51.100.10"
	unfamiliarIP   = "203.0.113.77"
	knownUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) Safari/605.1.15"
)

// testTOTPKey is a fixed 32-byte AES-256 key for sealing TOTP secrets
var testTOTPKey = []byte("0123456789abcdef0123456789abcdef")

// TestAccountEmail generates a unique email so parallel packages never collide
func TestAccountEmail(suffix string) string {
	return fmt.Sprintf("operator-%d-%s@paydesk.test", time.Now().UnixNano(), suffix)
}
