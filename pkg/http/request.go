package http

import (
	"net"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxUserAgentLength bounds the user agent stored with login events
const MaxUserAgentLength = 512

// IPConfig holds configuration for IP extraction
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ClientInfo is the request origin recorded with authentication events
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// ExtractClientInfo returns the client IP and a cleaned, length-bounded
// user agent. Both are safe to store in a TEXT column.
func ExtractClientInfo(r *http.Request, config *IPConfig) ClientInfo {
	return ClientInfo{
		IPAddress: CleanText(ExtractClientIP(r, config)),
		UserAgent: CleanUserAgent(r.UserAgent()),
	}
}

// CleanText replaces invalid UTF-8 with U+FFFD and drops control characters.
// Header values may carry raw bytes that Postgres refuses to store.
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// CleanUserAgent applies CleanText and then TruncateUserAgent
func CleanUserAgent(ua string) string {
	return TruncateUserAgent(CleanText(ua))
}

// TruncateUserAgent cuts ua to MaxUserAgentLength bytes without splitting a rune
func TruncateUserAgent(ua string) string {
	if len(ua) <= MaxUserAgentLength {
		return ua
	}
	cut := ua[:MaxUserAgentLength]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// ExtractClientIP returns the client address. Forwarding headers are honoured
// only when the direct peer is a trusted proxy; otherwise RemoteAddr wins.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := remoteHost(r)
	if config == nil || !inAnyCIDR(peer, config.TrustedProxies) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, candidate := range strings.Split(xff, ",") {
			candidate = strings.TrimSpace(candidate)
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	return peer
}

func remoteHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func inAnyCIDR(ip string, cidrs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if block.Contains(parsed) {
			return true
		}
	}
	return false
}
