// Package metrics exposes Prometheus metrics for authentication, lockout and
// two-factor activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paydesk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paydesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paydesk_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // success, failure, locked, second_factor_required
	)

	accountLockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paydesk_account_lockouts_total",
			Help: "Number of times an account crossed the failure threshold",
		},
	)

	twoFactorEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paydesk_two_factor_events_total",
			Help: "Two-factor enrollment and verification events",
		},
		[]string{"action", "result"},
	)

	suspiciousSignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paydesk_suspicious_signals_total",
			Help: "Suspicious activity signals raised on successful logins",
		},
		[]string{"signal"},
	)

	dispatchDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paydesk_dispatch_dropped_total",
			Help: "Background tasks dropped because the queue was full",
		},
		[]string{"task"},
	)
)

// Login outcome labels
const (
	LoginSuccess              = "success"
	LoginFailure              = "failure"
	LoginLocked               = "locked"
	LoginSecondFactorRequired = "second_factor_required"
)

// RecordLogin records a concluded login step.
func RecordLogin(outcome string) {
	loginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordAccountLockout records an account lockout.
func RecordAccountLockout() {
	accountLockoutsTotal.Inc()
}

// RecordTwoFactorEvent records a two-factor action such as "confirm" or "verify".
func RecordTwoFactorEvent(action string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	twoFactorEventsTotal.WithLabelValues(action, result).Inc()
}

// RecordSuspiciousSignal records one fired signal.
func RecordSuspiciousSignal(signal string) {
	suspiciousSignalsTotal.WithLabelValues(signal).Inc()
}

// RecordDispatchDropped records a dropped background task.
func RecordDispatchDropped(task string) {
	dispatchDroppedTotal.WithLabelValues(task).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

var knownPaths = map[string]struct{}{
	"/health":           {},
	"/metrics":          {},
	"/auth/login":       {},
	"/auth/login/2fa":   {},
	"/auth/2fa":         {},
	"/auth/2fa/setup":   {},
	"/auth/2fa/confirm": {},
	"/auth/2fa/disable": {},
}

// normalizePath keeps label cardinality bounded.
func normalizePath(path string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "/other"
}
