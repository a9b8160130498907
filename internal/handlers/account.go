package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// EmailChangeServiceInterface defines verified email changes
type EmailChangeServiceInterface interface {
	RequestEmailChange(ctx context.Context, subjectID, newEmail, currentPassword string) error
	ConfirmEmailChange(ctx context.Context, raw string) error
}

// PasswordChangeServiceInterface defines authenticated password changes
type PasswordChangeServiceInterface interface {
	ChangePassword(ctx context.Context, subjectID, currentPassword, newPassword string) error
	ForceChangePassword(ctx context.Context, subjectID, newPassword string) error
}

// AccountHandler handles email and password changes for the signed-in subject
type AccountHandler struct {
	emails    EmailChangeServiceInterface
	passwords PasswordChangeServiceInterface
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(emails EmailChangeServiceInterface, passwords PasswordChangeServiceInterface) *AccountHandler {
	return &AccountHandler{emails: emails, passwords: passwords}
}

// EmailChangeRequest represents the request body for changing email
type EmailChangeRequest struct {
	NewEmail        string `json:"new_email" validate:"required,email,max=254"`
	CurrentPassword string `json:"current_password" validate:"required,max=1024"`
}

// TokenRequest carries a raw verification token
type TokenRequest struct {
	Token string `json:"token" validate:"required,max=128,printascii"`
}

// PasswordChangeRequest represents the request body for a self-service change
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=1024"`
	NewPassword     string `json:"new_password" validate:"required,max=1024"`
}

// ForcedPasswordChangeRequest represents the request body for a forced change
type ForcedPasswordChangeRequest struct {
	NewPassword string `json:"new_password" validate:"required,max=1024"`
}

// RequestEmailChange sends a confirmation link to the new address
// @Router /account/email [post]
func (h *AccountHandler) RequestEmailChange(w http.ResponseWriter, r *http.Request) {
	subjectID := auth.GetSubjectFromContext(r)
	if subjectID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req EmailChangeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.emails.RequestEmailChange(r.Context(), subjectID, req.NewEmail, req.CurrentPassword); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: "A confirmation link has been sent to the new address."})
}

// ConfirmEmailChange applies the address carried by the token. The token
// alone authorizes the change, so no session is required.
// @Router /account/email/confirm [post]
func (h *AccountHandler) ConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.emails.ConfirmEmailChange(r.Context(), req.Token); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Email address updated"})
}

// ChangePassword replaces the password after checking the current one
// @Router /account/password [post]
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	subjectID := auth.GetSubjectFromContext(r)
	if subjectID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req PasswordChangeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.passwords.ChangePassword(r.Context(), subjectID, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, models.ErrBadCredentials) {
		pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password changed"})
}

// ForceChangePassword completes a change required by an administrator
// @Router /account/password/forced [post]
func (h *AccountHandler) ForceChangePassword(w http.ResponseWriter, r *http.Request) {
	subjectID := auth.GetSubjectFromContext(r)
	if subjectID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ForcedPasswordChangeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.passwords.ForceChangePassword(r.Context(), subjectID, req.NewPassword)
	if errors.Is(err, models.ErrUnauthorized) {
		pkghttp.WriteForbidden(w, "No password change is pending")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password changed"})
}
