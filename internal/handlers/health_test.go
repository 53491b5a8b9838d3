package handlers_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/paydesk/internal/handlers"
)

func TestHealth(t *testing.T) {
	up := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }

	t.Run("healthy", func(t *testing.T) {
		handler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{"database": up, "redis": up})
		w := httptest.NewRecorder()
		handler.Health(w, httptest.NewRequest("GET", "/health", nil))

		var resp handlers.HealthResponse
		handlers.AssertJSONResponse(t, w, 200, &resp)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, map[string]string{"database": "up", "redis": "up"}, resp.Checks)
	})

	t.Run("redis down", func(t *testing.T) {
		handler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{"database": up, "redis": down})
		w := httptest.NewRecorder()
		handler.Health(w, httptest.NewRequest("GET", "/health", nil))

		var resp handlers.HealthResponse
		handlers.AssertJSONResponse(t, w, 503, &resp)
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "down", resp.Checks["redis"])
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}
