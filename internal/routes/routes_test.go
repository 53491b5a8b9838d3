package routes

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/paydesk/internal/auth"
	"github.com/BradenHooton/paydesk/internal/handlers"
	"github.com/BradenHooton/paydesk/internal/models"
)

const testJWTSecret = "routes-test-secret-that-is-at-least-32-bytes"

func newTestRouter(t *testing.T) (http.Handler, *auth.TokenManager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm := auth.NewTokenManager(testJWTSecret, 15*time.Minute)

	router := chi.NewRouter()
	RegisterRoutes(router, Handlers{
		Auth: handlers.NewAuthHandler(&handlers.MockAuthService{}, nil, logger),
		TwoFactor: handlers.NewTwoFactorHandler(&handlers.MockTwoFactorService{
			StatusFunc: func(ctx context.Context, accountID string) (*models.TwoFactorStatus, error) {
				return &models.TwoFactorStatus{State: models.TwoFactorStateEnabled}, nil
			},
		}, nil, logger),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"database": func(ctx context.Context) error { return nil },
		}),
	}, tm, nil, 100)
	return router, tm
}

func TestRoutes_TwoFactorRequiresSession(t *testing.T) {
	router, tm := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/auth/2fa", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := tm.GenerateAccessToken("acct-1", "holder@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/auth/2fa", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"enabled"`)
}

func TestRoutes_PublicEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := strings.NewReader(`{"email":"holder@example.com","password":"wrong"}`)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/auth/login", body))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
