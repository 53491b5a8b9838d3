package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorders_AppearInScrape(t *testing.T) {
	RecordLogin(LoginLocked)
	RecordAccountLockout()
	RecordTwoFactorEvent("confirm", true)
	RecordSuspiciousSignal("new_ip")
	RecordDispatchDropped("notify_account_locked")

	body := scrape(t)
	assert.Contains(t, body, `paydesk_login_attempts_total{outcome="locked"}`)
	assert.Contains(t, body, "paydesk_account_lockouts_total")
	assert.Contains(t, body, `paydesk_two_factor_events_total{action="confirm",result="success"}`)
	assert.Contains(t, body, `paydesk_suspicious_signals_total{signal="new_ip"}`)
	assert.Contains(t, body, `paydesk_dispatch_dropped_total{task="notify_account_locked"}`)
}

func TestMiddleware_NormalizesPath(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusLocked)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/accounts/123", nil))

	body := scrape(t)
	assert.Contains(t, body, `paydesk_http_requests_total{method="POST",path="/auth/login",status="423"}`)
	assert.Contains(t, body, `path="/other"`)
	assert.NotContains(t, body, "/accounts/123")
}
