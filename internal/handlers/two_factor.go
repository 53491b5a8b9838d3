package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/paydesk/internal/auth"
	"github.com/BradenHooton/paydesk/internal/models"
	pkghttp "github.com/BradenHooton/paydesk/pkg/http"
)

// TwoFactorServiceInterface defines the enrollment operations
type TwoFactorServiceInterface interface {
	BeginSetup(ctx context.Context, accountID string, origin models.RequestOrigin) (*models.TwoFactorSetup, error)
	ConfirmSetup(ctx context.Context, accountID, code string, origin models.RequestOrigin) error
	Disable(ctx context.Context, accountID, password string, origin models.RequestOrigin) error
	Status(ctx context.Context, accountID string) (*models.TwoFactorStatus, error)
}

// TwoFactorHandler serves enrollment for the signed-in account
type TwoFactorHandler struct {
	service  TwoFactorServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewTwoFactorHandler(service TwoFactorServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// ConfirmTwoFactorRequest represents the request body for confirming setup
type ConfirmTwoFactorRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

// DisableTwoFactorRequest represents the request body for disabling two-factor
type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required,max=128"`
}

func (h *TwoFactorHandler) session(w http.ResponseWriter, r *http.Request) (string, models.RequestOrigin, bool) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil || claims.AccountID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return "", models.RequestOrigin{}, false
	}
	client := pkghttp.ExtractClientInfo(r, h.ipConfig)
	return claims.AccountID, models.RequestOrigin{IPAddress: client.IPAddress, UserAgent: client.UserAgent}, true
}

// Setup starts enrollment and returns the secret, provisioning URI and QR code
// @Summary Begin two-factor setup
// @Produce json
// @Success 201 {object} models.TwoFactorSetup
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /auth/2fa/setup [post]
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	accountID, origin, ok := h.session(w, r)
	if !ok {
		return
	}

	setup, err := h.service.BeginSetup(r.Context(), accountID, origin)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, setup)
}

// Confirm enables two-factor once the authenticator produces a valid code
// @Summary Confirm two-factor setup
// @Accept json
// @Param request body ConfirmTwoFactorRequest true "Confirmation code"
// @Produce json
// @Success 200 {object} models.TwoFactorStatus
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /auth/2fa/confirm [post]
func (h *TwoFactorHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	accountID, origin, ok := h.session(w, r)
	if !ok {
		return
	}

	var req ConfirmTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ConfirmSetup(r.Context(), accountID, req.Code, origin); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.writeStatus(w, r, accountID)
}

// Disable turns two-factor off after re-checking the password
// @Summary Disable two-factor
// @Accept json
// @Param request body DisableTwoFactorRequest true "Current password"
// @Produce json
// @Success 200 {object} models.TwoFactorStatus
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /auth/2fa/disable [post]
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	accountID, origin, ok := h.session(w, r)
	if !ok {
		return
	}

	var req DisableTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Disable(r.Context(), accountID, req.Password, origin); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.writeStatus(w, r, accountID)
}

// Status reports the enrollment state
// @Summary Two-factor status
// @Produce json
// @Success 200 {object} models.TwoFactorStatus
// @Router /auth/2fa [get]
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	accountID, _, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeStatus(w, r, accountID)
}

func (h *TwoFactorHandler) writeStatus(w http.ResponseWriter, r *http.Request, accountID string) {
	status, err := h.service.Status(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}
