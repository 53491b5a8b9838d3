//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/paydesk/internal/config"
	"github.com/BradenHooton/paydesk/internal/database"
	"github.com/BradenHooton/paydesk/internal/notify"
	"github.com/BradenHooton/paydesk/internal/server"
)

// SentNotification is a captured security notification
type SentNotification struct {
	Kind     string // "account_locked" or "suspicious_activity"
	Email    string
	Activity notify.SuspiciousActivity
}

// RecordingNotifier captures notifications for assertions
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []SentNotification
}

func (n *RecordingNotifier) AccountLocked(ctx context.Context, email string, lockedUntil time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, SentNotification{Kind: "account_locked", Email: email})
	return nil
}

func (n *RecordingNotifier) SuspiciousActivity(ctx context.Context, email string, activity notify.SuspiciousActivity) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, SentNotification{Kind: "suspicious_activity", Email: email, Activity: activity})
	return nil
}

// Sent returns the notifications of kind sent so far
func (n *RecordingNotifier) Sent(kind string) []SentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []SentNotification
	for _, s := range n.sent {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// TestServer runs the full router against the test database and an
// in-memory Redis
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Redis    *miniredis.Miniredis
	Notifier *RecordingNotifier
	Config   *config.Config
	app      *server.Server
	rdb      *redis.Client
}

// NewTestServer wires the production stack. Requests may set X-Forwarded-For
// because the loopback peer is a trusted proxy.
func NewTestServer(t *testing.T, db *database.DB) *TestServer {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Env:            "test",
			TrustedProxies: []string{"127.0.0.1/32", "::1/128"},
			LoginRateLimit: 1000,
		},
		Auth: config.AuthConfig{
			JWTSecret:         "integration-secret-at-least-32-characters",
			AccessTokenExpiry: 15 * time.Minute,
			ChallengeTTL:      5 * time.Minute,
		},
		Security: config.SecurityConfig{
			LockoutThreshold:      5,
			LockoutDuration:       15 * time.Minute,
			BcryptCost:            bcrypt.MinCost,
			TOTPIssuer:            "PaydeskTest",
			TOTPEncryptionKey:     testTOTPKey,
			DetectorHistoryWindow: 30 * 24 * time.Hour,
			DetectorHistoryLimit:  500,
			DetectorRapidWindow:   5 * time.Minute,
			DetectorRapidLimit:    100,
		},
		Dispatch: config.DispatchConfig{
			Workers:     2,
			QueueSize:   64,
			TaskTimeout: 5 * time.Second,
		},
	}

	mr := miniredis.RunT(t)
	cfg.Redis = config.RedisConfig{Addr: mr.Addr()}
	rdb, err := database.NewRedisClient(context.Background(), &cfg.Redis, logger)
	require.NoError(t, err)

	notifier := &RecordingNotifier{}
	app, err := server.New(server.Dependencies{
		Config:      cfg,
		Store:       db.Pool,
		StoreHealth: db.HealthCheck,
		Redis:       rdb,
		Notifier:    notifier,
		Logger:      logger,
	})
	require.NoError(t, err)

	ts := &TestServer{
		Server:   httptest.NewServer(app.Handler()),
		DB:       db,
		Redis:    mr,
		Notifier: notifier,
		Config:   cfg,
		app:      app,
		rdb:      rdb,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close stops the server and drains background work
func (ts *TestServer) Close() {
	ts.Server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ts.app.Shutdown(ctx)
	_ = ts.rdb.Close()
}

// Request sends a JSON request. A non-empty clientIP is passed as
// X-Forwarded-For and a non-empty accessToken as a Bearer token.
func (ts *TestServer) Request(t *testing.T, method, path string, body interface{}, clientIP, accessToken string) *http.Response {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", knownUserAgent)
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ParseJSONResponse decodes and closes the response body
func ParseJSONResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

// Login posts a password login from clientIP
func (ts *TestServer) Login(t *testing.T, email, password, clientIP string) *http.Response {
	return ts.Request(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, clientIP, "")
}
