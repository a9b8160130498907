package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// writeServiceError maps service sentinels to responses. Messages stay
// generic: lock state, subject existence and link internals never leak.
func writeServiceError(w http.ResponseWriter, err error) {
	var violation *models.PolicyViolationError

	switch {
	case errors.As(err, &violation):
		pkghttp.WritePolicyViolation(w, violation.Violations)
	case errors.Is(err, models.ErrBadCredentials):
		pkghttp.WriteUnauthorized(w, "Invalid username or password")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.", 0)
	case errors.Is(err, models.ErrInvalidToken):
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_token", "The link is invalid or has expired")
	case errors.Is(err, models.ErrEmailUnavailable):
		pkghttp.WriteConflict(w, "Email address is not available")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrLinkSessionInvalid):
		pkghttp.WriteError(w, http.StatusBadRequest, "link_session_invalid", "The sign-in attempt is invalid or has expired. Please start again.")
	case errors.Is(err, models.ErrLinkRequired):
		pkghttp.WriteError(w, http.StatusForbidden, "link_required", "No account is linked to this identity. Sign in and link your account first.")
	case errors.Is(err, models.ErrLinkFailed):
		pkghttp.WriteError(w, http.StatusConflict, "link_failed", "The external account could not be linked")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
