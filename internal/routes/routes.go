package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/paydesk/internal/auth"
	"github.com/BradenHooton/paydesk/internal/handlers"
	"github.com/BradenHooton/paydesk/internal/metrics"
	"github.com/BradenHooton/paydesk/internal/middleware"
	pkghttp "github.com/BradenHooton/paydesk/pkg/http"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth      *handlers.AuthHandler
	TwoFactor *handlers.TwoFactorHandler
	Health    *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	ipConfig *pkghttp.IPConfig,
	loginRateLimit int,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()
	rateLimitConfig.IPConfig = ipConfig
	if loginRateLimit > 0 {
		rateLimitConfig.RequestsPerMinute = loginRateLimit
	}

	router.Get("/health", h.Health.Health)
	router.Method("GET", "/metrics", metrics.Handler())

	// Public routes - no session required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/login/2fa", h.Auth.VerifySecondFactor)
	})

	// Session routes
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(middleware.RateLimitByAccount(rateLimitConfig))

		r.Get("/auth/2fa", h.TwoFactor.Status)
		r.Post("/auth/2fa/setup", h.TwoFactor.Setup)
		r.Post("/auth/2fa/confirm", h.TwoFactor.Confirm)
		r.Post("/auth/2fa/disable", h.TwoFactor.Disable)
	})
}
