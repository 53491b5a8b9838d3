package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/paydesk/internal/models"
	pkghttp "github.com/BradenHooton/paydesk/pkg/http"
)

// AuthServiceInterface defines the interface for the login flow
type AuthServiceInterface interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
	VerifySecondFactor(ctx context.Context, req models.SecondFactorRequest) (*models.LoginResult, error)
}

// AuthHandler handles the two login endpoints
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// SecondFactorRequest represents the request body for the one-time code step
type SecondFactorRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required,uuid"`
	Code        string `json:"code" validate:"required,max=16"`
}

// Login handles the password step
// @Summary Password login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} models.LoginResult
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 423 {object} pkghttp.ErrorResponse
// @Failure 503 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	client := pkghttp.ExtractClientInfo(r, h.ipConfig)
	result, err := h.service.Login(r.Context(), models.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// VerifySecondFactor handles the one-time code step
// @Summary Complete a login with a one-time code
// @Accept json
// @Param request body SecondFactorRequest true "Second factor request"
// @Produce json
// @Success 200 {object} models.LoginResult
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 423 {object} pkghttp.ErrorResponse
// @Failure 503 {object} pkghttp.ErrorResponse
// @Router /auth/login/2fa [post]
func (h *AuthHandler) VerifySecondFactor(w http.ResponseWriter, r *http.Request) {
	var req SecondFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	client := pkghttp.ExtractClientInfo(r, h.ipConfig)
	result, err := h.service.VerifySecondFactor(r.Context(), models.SecondFactorRequest{
		ChallengeID: req.ChallengeID,
		Code:        req.Code,
		IPAddress:   client.IPAddress,
		UserAgent:   client.UserAgent,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}
