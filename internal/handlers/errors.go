package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/paydesk/internal/models"
	pkghttp "github.com/BradenHooton/paydesk/pkg/http"
)

// credentialsMessage is shared by every credential failure so responses do
// not reveal whether the email exists
const credentialsMessage = "Invalid email or password"

// writeServiceError maps service errors onto HTTP responses
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var lockErr *models.AccountLockedError

	switch {
	case errors.As(err, &lockErr):
		pkghttp.WriteLocked(w, "Account is temporarily locked. Try again later.", lockErr.RetryAfterSeconds())
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteLocked(w, "Account is temporarily locked. Try again later.", 0)
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, credentialsMessage)
	case errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteUnauthorized(w, "Invalid verification code")
	case errors.Is(err, models.ErrInvalidChallenge):
		pkghttp.WriteUnauthorized(w, "Login session expired. Sign in again.")
	case errors.Is(err, models.ErrInvalidPassword):
		pkghttp.WriteForbidden(w, "Password is incorrect")
	case errors.Is(err, models.ErrNotInSetup):
		pkghttp.WriteConflict(w, "Two-factor setup has not been started")
	case errors.Is(err, models.ErrTwoFactorAlreadyEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
	case errors.Is(err, models.ErrNotFound):
		// session for an account that no longer exists
		pkghttp.WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, models.ErrStoreUnavailable):
		logger.ErrorContext(r.Context(), "store unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		logger.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
