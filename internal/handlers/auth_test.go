package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/paydesk/internal/handlers"
	"github.com/BradenHooton/paydesk/internal/models"
	pkghttp "github.com/BradenHooton/paydesk/pkg/http"
)

const challengeID = "6f1c2b9e-3a57-4d2e-9a0b-7c1e5d4f8a21"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogin_Success(t *testing.T) {
	expires := time.Now().Add(15 * time.Minute)
	var got models.LoginRequest
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
			got = req
			return &models.LoginResult{
				Status:      models.LoginStatusAuthenticated,
				AccessToken: "access_token_123",
				ExpiresAt:   &expires,
				Account:     &models.AccountSummary{ID: "acct-1", Email: "holder@example.com"},
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, testLogger())
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "holder@example.com",
		Password: "password123",
	})
	req.RemoteAddr = "203.0.113.10:51000"
	req.Header.Set("User-Agent", "paydesk-console/1.0")

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp models.LoginResult
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, models.LoginStatusAuthenticated, resp.Status)
	assert.Equal(t, "access_token_123", resp.AccessToken)
	assert.Equal(t, "203.0.113.10", got.IPAddress)
	assert.Equal(t, "paydesk-console/1.0", got.UserAgent)
}

func TestLogin_RequiresSecondFactor(t *testing.T) {
	expires := time.Now().Add(5 * time.Minute)
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
			return &models.LoginResult{
				Status:             models.LoginStatusRequiresSecondFactor,
				ChallengeID:        challengeID,
				ChallengeExpiresAt: &expires,
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, testLogger())
	w := httptest.NewRecorder()
	handler.Login(w, handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "holder@example.com",
		Password: "password123",
	}))

	var resp models.LoginResult
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, models.LoginStatusRequiresSecondFactor, resp.Status)
	assert.Equal(t, challengeID, resp.ChallengeID)
	assert.Empty(t, resp.AccessToken)
	assert.NotContains(t, w.Body.String(), "account_id")
}

func TestLogin_InvalidBody(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, nil, testLogger())

	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestLogin_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body handlers.LoginRequest
	}{
		{"missing email", handlers.LoginRequest{Password: "password123"}},
		{"malformed email", handlers.LoginRequest{Email: "holder", Password: "password123"}},
		{"missing password", handlers.LoginRequest{Email: "holder@example.com"}},
		{"oversized password", handlers.LoginRequest{Email: "holder@example.com", Password: strings.Repeat("x", 129)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			mockAuth := &handlers.MockAuthService{
				LoginFunc: func(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
					called = true
					return nil, nil
				},
			}
			handler := handlers.NewAuthHandler(mockAuth, nil, testLogger())

			w := httptest.NewRecorder()
			handler.Login(w, handlers.NewTestRequest(t, "POST", "/auth/login", tt.body))

			handlers.AssertErrorResponse(t, w, 400, "bad_request")
			assert.False(t, called)
		})
	}
}

func TestLogin_ErrorMapping(t *testing.T) {
	lockedUntil := time.Now().Add(10 * time.Minute)

	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{"invalid credentials", models.ErrInvalidCredentials, 401, "unauthorized", ""},
		{"locked", &models.AccountLockedError{LockedUntil: lockedUntil, Remaining: 90 * time.Second}, 423, "account_locked", "90"},
		{"wrapped lock", fmt.Errorf("login: %w", &models.AccountLockedError{Remaining: 61500 * time.Millisecond}), 423, "account_locked", "62"},
		{"store unavailable", fmt.Errorf("load account: %w: %w", models.ErrStoreUnavailable, errors.New("dial tcp")), 503, "service_unavailable", ""},
		{"unexpected", errors.New("boom"), 500, "internal_error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				LoginFunc: func(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
					return nil, tt.err
				},
			}
			handler := handlers.NewAuthHandler(mockAuth, nil, testLogger())

			w := httptest.NewRecorder()
			handler.Login(w, handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
				Email:    "holder@example.com",
				Password: "password123",
			}))

			resp := handlers.AssertErrorResponse(t, w, tt.status, tt.code)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
			if tt.retryAfter != "" {
				assert.Equal(t, tt.retryAfter, fmt.Sprint(resp.RetryAfterSeconds))
			}
			assert.NotContains(t, w.Body.String(), "dial tcp")
		})
	}
}

func TestLogin_SameMessageForEveryCredentialFailure(t *testing.T) {
	messages := map[string]bool{}
	for _, err := range []error{models.ErrInvalidCredentials, fmt.Errorf("wrapped: %w", models.ErrInvalidCredentials)} {
		mockAuth := &handlers.MockAuthService{
			LoginFunc: func(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
				return nil, err
			},
		}
		handler := handlers.NewAuthHandler(mockAuth, nil, testLogger())

		w := httptest.NewRecorder()
		handler.Login(w, handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
			Email:    "holder@example.com",
			Password: "password123",
		}))
		messages[handlers.AssertErrorResponse(t, w, 401, "unauthorized").Message] = true
	}
	assert.Len(t, messages, 1)
}

func TestLogin_UsesTrustedProxyHeader(t *testing.T) {
	var got models.LoginRequest
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
			got = req
			return &models.LoginResult{Status: models.LoginStatusAuthenticated}, nil
		},
	}
	handler := handlers.NewAuthHandler(mockAuth, &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}, testLogger())

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "holder@example.com",
		Password: "password123",
	})
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.1.2.3")

	handler.Login(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.7", got.IPAddress)
}

// ============================================================================
// Second factor step
// ============================================================================

func TestVerifySecondFactor_Success(t *testing.T) {
	var got models.SecondFactorRequest
	mockAuth := &handlers.MockAuthService{
		VerifySecondFactorFunc: func(ctx context.Context, req models.SecondFactorRequest) (*models.LoginResult, error) {
			got = req
			return &models.LoginResult{Status: models.LoginStatusAuthenticated, AccessToken: "tok"}, nil
		},
	}
	handler := handlers.NewAuthHandler(mockAuth, nil, testLogger())

	w := httptest.NewRecorder()
	handler.VerifySecondFactor(w, handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.SecondFactorRequest{
		ChallengeID: challengeID,
		Code:        "123456",
	}))

	var resp models.LoginResult
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "tok", resp.AccessToken)
	assert.Equal(t, challengeID, got.ChallengeID)
	assert.Equal(t, "123456", got.Code)
}

func TestVerifySecondFactor_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wrong code", models.ErrInvalidCode, 401, "unauthorized"},
		{"expired challenge", models.ErrInvalidChallenge, 401, "unauthorized"},
		{"locked", models.NewAccountLockedError(time.Now().Add(time.Minute), time.Now()), 423, "account_locked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				VerifySecondFactorFunc: func(ctx context.Context, req models.SecondFactorRequest) (*models.LoginResult, error) {
					return nil, tt.err
				},
			}
			handler := handlers.NewAuthHandler(mockAuth, nil, testLogger())

			w := httptest.NewRecorder()
			handler.VerifySecondFactor(w, handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.SecondFactorRequest{
				ChallengeID: challengeID,
				Code:        "000000",
			}))

			handlers.AssertErrorResponse(t, w, tt.status, tt.code)
		})
	}
}

func TestVerifySecondFactor_RejectsMalformedChallengeID(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, nil, testLogger())

	w := httptest.NewRecorder()
	handler.VerifySecondFactor(w, handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.SecondFactorRequest{
		ChallengeID: "acct-1",
		Code:        "123456",
	}))

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}
