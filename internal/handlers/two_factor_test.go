package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/paydesk/internal/handlers"
	"github.com/BradenHooton/paydesk/internal/models"
)

func TestTwoFactorSetup_Success(t *testing.T) {
	var gotAccount string
	var gotOrigin models.RequestOrigin
	mockService := &handlers.MockTwoFactorService{
		BeginSetupFunc: func(ctx context.Context, accountID string, origin models.RequestOrigin) (*models.TwoFactorSetup, error) {
			gotAccount, gotOrigin = accountID, origin
			return &models.TwoFactorSetup{
				Secret: "JBSWY3DPEHPK3PXP",
				URI:    "otpauth://totp/Paydesk:holder@example.com?secret=JBSWY3DPEHPK3PXP",
				QRCode: "data:image/png;base64,AAAA",
			}, nil
		},
	}
	handler := handlers.NewTwoFactorHandler(mockService, nil, testLogger())

	req := handlers.WithSession(httptest.NewRequest("POST", "/auth/2fa/setup", nil), "acct-1", "holder@example.com")
	req.RemoteAddr = "203.0.113.10:4000"
	w := httptest.NewRecorder()
	handler.Setup(w, req)

	var resp models.TwoFactorSetup
	handlers.AssertJSONResponse(t, w, 201, &resp)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", resp.Secret)
	assert.Contains(t, resp.QRCode, "data:image/png;base64,")
	assert.Equal(t, "acct-1", gotAccount)
	assert.Equal(t, "203.0.113.10", gotOrigin.IPAddress)
}

func TestTwoFactorSetup_AlreadyEnabled(t *testing.T) {
	mockService := &handlers.MockTwoFactorService{
		BeginSetupFunc: func(ctx context.Context, accountID string, origin models.RequestOrigin) (*models.TwoFactorSetup, error) {
			return nil, models.ErrTwoFactorAlreadyEnabled
		},
	}
	handler := handlers.NewTwoFactorHandler(mockService, nil, testLogger())

	req := handlers.WithSession(httptest.NewRequest("POST", "/auth/2fa/setup", nil), "acct-1", "holder@example.com")
	w := httptest.NewRecorder()
	handler.Setup(w, req)

	handlers.AssertErrorResponse(t, w, 409, "conflict")
}

func TestTwoFactor_RequiresSession(t *testing.T) {
	handler := handlers.NewTwoFactorHandler(&handlers.MockTwoFactorService{}, nil, testLogger())

	w := httptest.NewRecorder()
	handler.Status(w, httptest.NewRequest("GET", "/auth/2fa", nil))

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestTwoFactorConfirm(t *testing.T) {
	enabledAt := time.Now()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"enabled", nil, 200, ""},
		{"wrong code", models.ErrInvalidCode, 401, "unauthorized"},
		{"not in setup", models.ErrNotInSetup, 409, "conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotCode string
			mockService := &handlers.MockTwoFactorService{
				ConfirmSetupFunc: func(ctx context.Context, accountID, code string, origin models.RequestOrigin) error {
					gotCode = code
					return tt.err
				},
				StatusFunc: func(ctx context.Context, accountID string) (*models.TwoFactorStatus, error) {
					return &models.TwoFactorStatus{State: models.TwoFactorStateEnabled, EnabledAt: &enabledAt}, nil
				},
			}
			handler := handlers.NewTwoFactorHandler(mockService, nil, testLogger())

			req := handlers.WithSession(
				handlers.NewTestRequest(t, "POST", "/auth/2fa/confirm", handlers.ConfirmTwoFactorRequest{Code: "123456"}),
				"acct-1", "holder@example.com")
			w := httptest.NewRecorder()
			handler.Confirm(w, req)

			assert.Equal(t, "123456", gotCode)
			if tt.err == nil {
				var resp models.TwoFactorStatus
				handlers.AssertJSONResponse(t, w, 200, &resp)
				assert.Equal(t, models.TwoFactorStateEnabled, resp.State)
				return
			}
			handlers.AssertErrorResponse(t, w, tt.status, tt.code)
		})
	}
}

func TestTwoFactorConfirm_MissingCode(t *testing.T) {
	handler := handlers.NewTwoFactorHandler(&handlers.MockTwoFactorService{}, nil, testLogger())

	req := handlers.WithSession(
		handlers.NewTestRequest(t, "POST", "/auth/2fa/confirm", handlers.ConfirmTwoFactorRequest{}),
		"acct-1", "holder@example.com")
	w := httptest.NewRecorder()
	handler.Confirm(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestTwoFactorDisable(t *testing.T) {
	t.Run("wrong password", func(t *testing.T) {
		mockService := &handlers.MockTwoFactorService{
			DisableFunc: func(ctx context.Context, accountID, password string, origin models.RequestOrigin) error {
				return models.ErrInvalidPassword
			},
		}
		handler := handlers.NewTwoFactorHandler(mockService, nil, testLogger())

		req := handlers.WithSession(
			handlers.NewTestRequest(t, "POST", "/auth/2fa/disable", handlers.DisableTwoFactorRequest{Password: "guess"}),
			"acct-1", "holder@example.com")
		w := httptest.NewRecorder()
		handler.Disable(w, req)

		handlers.AssertErrorResponse(t, w, 403, "forbidden")
	})

	t.Run("disabled", func(t *testing.T) {
		var gotPassword string
		mockService := &handlers.MockTwoFactorService{
			DisableFunc: func(ctx context.Context, accountID, password string, origin models.RequestOrigin) error {
				gotPassword = password
				return nil
			},
		}
		handler := handlers.NewTwoFactorHandler(mockService, nil, testLogger())

		req := handlers.WithSession(
			handlers.NewTestRequest(t, "POST", "/auth/2fa/disable", handlers.DisableTwoFactorRequest{Password: "password123"}),
			"acct-1", "holder@example.com")
		w := httptest.NewRecorder()
		handler.Disable(w, req)

		var resp models.TwoFactorStatus
		handlers.AssertJSONResponse(t, w, 200, &resp)
		assert.Equal(t, models.TwoFactorStateDisabled, resp.State)
		assert.Equal(t, "password123", gotPassword)
	})
}

func TestTwoFactorStatus_NeverReturnsSecret(t *testing.T) {
	handler := handlers.NewTwoFactorHandler(&handlers.MockTwoFactorService{
		StatusFunc: func(ctx context.Context, accountID string) (*models.TwoFactorStatus, error) {
			return &models.TwoFactorStatus{State: models.TwoFactorStatePending}, nil
		},
	}, nil, testLogger())

	req := handlers.WithSession(httptest.NewRequest("GET", "/auth/2fa", nil), "acct-1", "holder@example.com")
	w := httptest.NewRecorder()
	handler.Status(w, req)

	var body map[string]interface{}
	handlers.AssertJSONResponse(t, w, 200, &body)
	require.Equal(t, "pending", body["state"])
	assert.NotContains(t, body, "secret")
}
