package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/paydesk/internal/auth"
	"github.com/BradenHooton/paydesk/internal/background"
	"github.com/BradenHooton/paydesk/internal/config"
	"github.com/BradenHooton/paydesk/internal/database"
	"github.com/BradenHooton/paydesk/internal/handlers"
	"github.com/BradenHooton/paydesk/internal/metrics"
	middlewareCustom "github.com/BradenHooton/paydesk/internal/middleware"
	"github.com/BradenHooton/paydesk/internal/notify"
	"github.com/BradenHooton/paydesk/internal/repositories"
	"github.com/BradenHooton/paydesk/internal/routes"
	"github.com/BradenHooton/paydesk/internal/services"
	pkghttp "github.com/BradenHooton/paydesk/pkg/http"
	pkglogger "github.com/BradenHooton/paydesk/pkg/logger"
)

// Dependencies are the connections and sinks the server is built on.
// Store is usually a *pgxpool.Pool.
type Dependencies struct {
	Config      *config.Config
	Store       database.Querier
	StoreHealth handlers.HealthCheck
	Redis       redis.UniversalClient
	Notifier    notify.Notifier
	Logger      *slog.Logger
}

// Server owns the HTTP router and the background workers behind it
type Server struct {
	router     *chi.Mux
	server     *http.Server
	dispatcher *background.Dispatcher
	sweeper    *background.LockSweeper
	sweepEvery time.Duration
	stopOnce   sync.Once
	logger     *slog.Logger
}

// New wires repositories, services and handlers into a router
func New(deps Dependencies) (*Server, error) {
	if deps.Config == nil || deps.Store == nil || deps.Redis == nil || deps.Notifier == nil {
		return nil, errors.New("server: config, store, redis and notifier are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	totpManager, err := auth.NewTOTPManager(cfg.Security.TOTPEncryptionKey, cfg.Security.TOTPIssuer)
	if err != nil {
		return nil, fmt.Errorf("initialize TOTP manager: %w", err)
	}
	credentials, err := auth.NewCredentialVerifier(cfg.Security.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("initialize credential verifier: %w", err)
	}
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Security.TimingMinDelay,
		RandomDelay: cfg.Security.TimingJitter,
	})

	dispatcher := background.NewDispatcher(background.DispatcherConfig{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		TaskTimeout: cfg.Dispatch.TaskTimeout,
		OnDrop:      metrics.RecordDispatchDropped,
	}, logger)

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(deps.Store)
	loginEventRepo := repositories.NewLoginEventRepository(deps.Store)
	auditLogRepo := repositories.NewAuditLogRepository(deps.Store)
	challengeRepo := repositories.NewChallengeRepository(deps.Redis, "")

	// Initialize services
	auditService := services.NewAuditService(auditLogRepo, pkglogger.NewAuditLogger(logger), dispatcher, logger)
	lockoutGuard := services.NewLockoutGuard(accountRepo, deps.Notifier, dispatcher, logger, services.LockoutConfig{
		Threshold: cfg.Security.LockoutThreshold,
		Duration:  cfg.Security.LockoutDuration,
	})
	detector := services.NewSuspiciousActivityDetector(loginEventRepo, deps.Notifier, dispatcher, logger, services.DetectorConfig{
		HistoryWindow: cfg.Security.DetectorHistoryWindow,
		HistoryLimit:  cfg.Security.DetectorHistoryLimit,
		RapidWindow:   cfg.Security.DetectorRapidWindow,
		RapidLimit:    cfg.Security.DetectorRapidLimit,
	})
	twoFactorService := services.NewTwoFactorService(accountRepo, totpManager, credentials, auditService, logger)
	authService := services.NewAuthService(services.AuthDependencies{
		Accounts:     accountRepo,
		Events:       loginEventRepo,
		Challenges:   challengeRepo,
		Lockout:      lockoutGuard,
		Credentials:  credentials,
		Codes:        totpManager,
		Detector:     detector,
		Sessions:     tokenManager,
		Timing:       timingDelay,
		Audit:        auditService,
		Tasks:        dispatcher,
		Logger:       logger,
		ChallengeTTL: cfg.Auth.ChallengeTTL,
	})

	// Initialize handlers
	storeHealth := deps.StoreHealth
	if storeHealth == nil {
		storeHealth = func(ctx context.Context) error { return nil }
	}
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	h := routes.Handlers{
		Auth:      handlers.NewAuthHandler(authService, ipConfig, logger),
		TwoFactor: handlers.NewTwoFactorHandler(twoFactorService, ipConfig, logger),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"database": storeHealth,
			"redis":    database.RedisHealthCheck(deps.Redis),
		}),
	}

	// Client IPs come from ExtractClientIP, which only trusts forwarding
	// headers from configured proxies
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(metrics.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, h, tokenManager, ipConfig, cfg.Server.LoginRateLimit)

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		dispatcher: dispatcher,
		sweeper:    background.NewLockSweeper(accountRepo, logger, cfg.Security.LockSweepInterval),
		sweepEvery: cfg.Security.LockSweepInterval,
		logger:     logger,
	}, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartSweeper runs the expired lock sweeper in the background. It is a
// no-op when no sweep interval is configured.
func (s *Server) StartSweeper(ctx context.Context) {
	if s.sweepEvery <= 0 {
		return
	}
	go s.sweeper.Start(ctx)
}

// Start serves HTTP until Shutdown
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown stops the sweeper, drains in-flight requests and then the
// queued notifications and audit writes
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(s.sweeper.Stop)

	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("background tasks abandoned: %w", err))
	}
	return errors.Join(errs...)
}
