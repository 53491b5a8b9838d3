package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/paydesk/internal/auth"
	"github.com/BradenHooton/paydesk/internal/models"
	pkghttp "github.com/BradenHooton/paydesk/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSession adds session claims to the request context for testing
// authenticated endpoints
func WithSession(req *http.Request, accountID, email string) *http.Request {
	claims := &models.TokenClaims{
		AccountID: accountID,
		Email:     email,
		Type:      "access",
	}
	ctx := context.WithValue(req.Context(), auth.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc              func(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
	VerifySecondFactorFunc func(ctx context.Context, req models.SecondFactorRequest) (*models.LoginResult, error)
}

func (m *MockAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, req)
}

func (m *MockAuthService) VerifySecondFactor(ctx context.Context, req models.SecondFactorRequest) (*models.LoginResult, error) {
	if m.VerifySecondFactorFunc == nil {
		return nil, models.ErrInvalidChallenge
	}
	return m.VerifySecondFactorFunc(ctx, req)
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	BeginSetupFunc   func(ctx context.Context, accountID string, origin models.RequestOrigin) (*models.TwoFactorSetup, error)
	ConfirmSetupFunc func(ctx context.Context, accountID, code string, origin models.RequestOrigin) error
	DisableFunc      func(ctx context.Context, accountID, password string, origin models.RequestOrigin) error
	StatusFunc       func(ctx context.Context, accountID string) (*models.TwoFactorStatus, error)
}

func (m *MockTwoFactorService) BeginSetup(ctx context.Context, accountID string, origin models.RequestOrigin) (*models.TwoFactorSetup, error) {
	if m.BeginSetupFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.BeginSetupFunc(ctx, accountID, origin)
}

func (m *MockTwoFactorService) ConfirmSetup(ctx context.Context, accountID, code string, origin models.RequestOrigin) error {
	if m.ConfirmSetupFunc == nil {
		return nil
	}
	return m.ConfirmSetupFunc(ctx, accountID, code, origin)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, accountID, password string, origin models.RequestOrigin) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, accountID, password, origin)
}

func (m *MockTwoFactorService) Status(ctx context.Context, accountID string) (*models.TwoFactorStatus, error) {
	if m.StatusFunc == nil {
		return &models.TwoFactorStatus{State: models.TwoFactorStateDisabled}, nil
	}
	return m.StatusFunc(ctx, accountID)
}
