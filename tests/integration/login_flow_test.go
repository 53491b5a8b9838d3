//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/paydesk/internal/auth"
	"github.com/BradenHooton/paydesk/internal/handlers"
	"github.com/BradenHooton/paydesk/internal/models"
	"github.com/BradenHooton/paydesk/internal/repositories"
	pkghttp "github.com/BradenHooton/paydesk/pkg/http"
)

func TestLoginFlow_PasswordOnly(t *testing.T) {
	resetDatabase(t)
	ctx := context.Background()
	ts := NewTestServer(t, testDB.DB)

	email := TestAccountEmail("password")
	account, err := SeedAccount(ctx, testDB.DB, email, testPassword)
	require.NoError(t, err)

	resp := ts.Login(t, email, testPassword, knownIP)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.LoginResult
	ParseJSONResponse(t, resp, &result)
	assert.Equal(t, models.LoginStatusAuthenticated, result.Status)
	assert.NotEmpty(t, result.AccessToken)
	require.NotNil(t, result.Account)
	assert.Equal(t, account.ID, result.Account.ID)

	events, err := repositories.NewLoginEventRepository(testDB.Pool).ListSince(ctx, repositories.LoginEventQuery{
		AccountID: account.ID,
		Since:     time.Now().Add(-time.Hour),
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.LoginOutcomeSuccess, events[0].Outcome)
	assert.Equal(t, knownIP, events[0].IPAddress)
}

func TestLoginFlow_UnknownAccountLooksLikeWrongPassword(t *testing.T) {
	resetDatabase(t)
	ctx := context.Background()
	ts := NewTestServer(t, testDB.DB)

	email := TestAccountEmail("known")
	_, err := SeedAccount(ctx, testDB.DB, email, testPassword)
	require.NoError(t, err)

	var wrong, unknown pkghttp.ErrorResponse
	resp := ts.Login(t, email, "Wrong#Password1", knownIP)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	ParseJSONResponse(t, resp, &wrong)

	resp = ts.Login(t, TestAccountEmail("missing"), "Wrong#Password1", knownIP)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	ParseJSONResponse(t, resp, &unknown)

	assert.Equal(t, wrong, unknown)
}

func TestLoginFlow_Lockout(t *testing.T) {
	resetDatabase(t)
	ctx := context.Background()
	ts := NewTestServer(t, testDB.DB)

	email := TestAccountEmail("lockout")
	_, err := SeedAccount(ctx, testDB.DB, email, testPassword)
	require.NoError(t, err)

	for i := 1; i < 5; i++ {
		resp := ts.Login(t, email, "Wrong#Password1", knownIP)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i)
	}

	resp := ts.Login(t, email, "Wrong#Password1", knownIP)
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	resp.Body.Close()

	// The correct password is refused while the lock is in force
	resp = ts.Login(t, email, testPassword, knownIP)
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	var locked pkghttp.ErrorResponse
	ParseJSONResponse(t, resp, &locked)
	assert.Equal(t, "account_locked", locked.Error)
	assert.Greater(t, locked.RetryAfterSeconds, 0)
	assert.LessOrEqual(t, locked.RetryAfterSeconds, 15*60)

	assert.Eventually(t, func() bool {
		return len(ts.Notifier.Sent("account_locked")) == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestLoginFlow_TwoFactor(t *testing.T) {
	resetDatabase(t)
	ctx := context.Background()
	ts := NewTestServer(t, testDB.DB)

	email := TestAccountEmail("twofactor")
	_, err := SeedAccount(ctx, testDB.DB, email, testPassword)
	require.NoError(t, err)

	resp := ts.Login(t, email, testPassword, knownIP)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session models.LoginResult
	ParseJSONResponse(t, resp, &session)

	// Enroll
	resp = ts.Request(t, http.MethodPost, "/auth/2fa/setup", nil, knownIP, session.AccessToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var setup models.TwoFactorSetup
	ParseJSONResponse(t, resp, &setup)
	require.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.URI, "otpauth://totp/")

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	resp = ts.Request(t, http.MethodPost, "/auth/2fa/confirm", handlers.ConfirmTwoFactorRequest{Code: wrongCode(code)}, knownIP, session.AccessToken)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.Request(t, http.MethodPost, "/auth/2fa/confirm", handlers.ConfirmTwoFactorRequest{Code: code}, knownIP, session.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status models.TwoFactorStatus
	ParseJSONResponse(t, resp, &status)
	assert.Equal(t, models.TwoFactorStateEnabled, status.State)

	// Password alone now yields a challenge
	resp = ts.Login(t, email, testPassword, knownIP)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending models.LoginResult
	ParseJSONResponse(t, resp, &pending)
	assert.Equal(t, models.LoginStatusRequiresSecondFactor, pending.Status)
	require.NotEmpty(t, pending.ChallengeID)
	assert.Empty(t, pending.AccessToken)

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	resp = ts.Request(t, http.MethodPost, "/auth/login/2fa", handlers.SecondFactorRequest{
		ChallengeID: pending.ChallengeID,
		Code:        code,
	}, knownIP, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var completed models.LoginResult
	ParseJSONResponse(t, resp, &completed)
	assert.Equal(t, models.LoginStatusAuthenticated, completed.Status)
	assert.NotEmpty(t, completed.AccessToken)

	// Challenges are single use
	resp = ts.Request(t, http.MethodPost, "/auth/login/2fa", handlers.SecondFactorRequest{
		ChallengeID: pending.ChallengeID,
		Code:        code,
	}, knownIP, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Disable requires the password
	resp = ts.Request(t, http.MethodPost, "/auth/2fa/disable", handlers.DisableTwoFactorRequest{Password: "Wrong#Password1"}, knownIP, completed.AccessToken)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.Request(t, http.MethodPost, "/auth/2fa/disable", handlers.DisableTwoFactorRequest{Password: testPassword}, knownIP, completed.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ParseJSONResponse(t, resp, &status)
	assert.Equal(t, models.TwoFactorStateDisabled, status.State)
}

func TestLoginFlow_ChallengeExpires(t *testing.T) {
	resetDatabase(t)
	ctx := context.Background()
	ts := NewTestServer(t, testDB.DB)

	email := TestAccountEmail("expiry")
	account, err := SeedAccount(ctx, testDB.DB, email, testPassword)
	require.NoError(t, err)
	enableTwoFactor(t, ts, account, "JBSWY3DPEHPK3PXP")

	resp := ts.Login(t, email, testPassword, knownIP)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending models.LoginResult
	ParseJSONResponse(t, resp, &pending)
	require.Equal(t, models.LoginStatusRequiresSecondFactor, pending.Status)

	ts.Redis.FastForward(ts.Config.Auth.ChallengeTTL + time.Second)

	code, err := totp.GenerateCode("JBSWY3DPEHPK3PXP", time.Now())
	require.NoError(t, err)
	resp = ts.Request(t, http.MethodPost, "/auth/login/2fa", handlers.SecondFactorRequest{
		ChallengeID: pending.ChallengeID,
		Code:        code,
	}, knownIP, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginFlow_SuspiciousActivity(t *testing.T) {
	resetDatabase(t)
	ctx := context.Background()
	ts := NewTestServer(t, testDB.DB)

	email := TestAccountEmail("suspicious")
	account, err := SeedAccount(ctx, testDB.DB, email, testPassword)
	require.NoError(t, err)
	_, err = SeedLoginEvent(ctx, testDB.DB, account.ID, knownIP, knownUserAgent, models.LoginOutcomeSuccess, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)

	resp := ts.Login(t, email, testPassword, knownIP)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.Login(t, email, testPassword, unfamiliarIP)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Eventually(t, func() bool {
		return len(ts.Notifier.Sent("suspicious_activity")) == 1
	}, 5*time.Second, 50*time.Millisecond)

	sent := ts.Notifier.Sent("suspicious_activity")[0]
	assert.Equal(t, email, sent.Email)
	assert.Equal(t, unfamiliarIP, sent.Activity.IPAddress)
	assert.Equal(t, []models.Signal{models.SignalNewIP}, sent.Activity.Signals)
}

func TestHealth(t *testing.T) {
	ts := NewTestServer(t, testDB.DB)

	resp := ts.Request(t, http.MethodGet, "/health", nil, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health handlers.HealthResponse
	ParseJSONResponse(t, resp, &health)
	assert.Equal(t, "healthy", health.Status)

	ts.Redis.Close()
	resp = ts.Request(t, http.MethodGet, "/health", nil, "", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// enableTwoFactor stores a sealed secret and enables it directly
func enableTwoFactor(t *testing.T, ts *TestServer, account *models.Account, secret string) {
	t.Helper()
	ctx := context.Background()

	manager := newTOTPManager(t, ts)
	sealed, err := manager.Encrypt(secret)
	require.NoError(t, err)

	repo := repositories.NewAccountRepository(testDB.Pool)
	ok, err := repo.SetPendingTwoFactorSecret(ctx, account.ID, sealed, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.EnableTwoFactor(ctx, account.ID, sealed, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
}

func newTOTPManager(t *testing.T, ts *TestServer) *auth.TOTPManager {
	t.Helper()
	manager, err := auth.NewTOTPManager(ts.Config.Security.TOTPEncryptionKey, ts.Config.Security.TOTPIssuer)
	require.NoError(t, err)
	return manager
}

// wrongCode shifts every digit of code
func wrongCode(code string) string {
	out := []byte(code)
	for i := range out {
		out[i] = '0' + (out[i]-'0'+5)%10
	}
	return string(out)
}
