package handlers

import (
	"context"
	"net/http"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// PasswordResetServiceInterface defines self-service credential recovery
type PasswordResetServiceInterface interface {
	RequestReset(ctx context.Context, username string) error
	ValidateResetToken(ctx context.Context, raw string) error
	ResetPassword(ctx context.Context, raw, newPassword string) error
}

// PasswordResetHandler handles the password reset endpoints
type PasswordResetHandler struct {
	service PasswordResetServiceInterface
}

// NewPasswordResetHandler creates a new PasswordResetHandler
func NewPasswordResetHandler(service PasswordResetServiceInterface) *PasswordResetHandler {
	return &PasswordResetHandler{service: service}
}

// PasswordResetRequest represents the request body for starting a reset
type PasswordResetRequest struct {
	Username string `json:"username" validate:"required,max=255"`
}

// PasswordResetConfirmRequest represents the request body for completing a reset
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" validate:"required,max=128,printascii"`
	NewPassword string `json:"new_password" validate:"required,max=1024"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

const resetAcceptedMessage = "If the account exists, a password reset link has been sent."

// RequestReset starts a reset. The response is the same whether or not the
// account exists.
// @Router /auth/password-reset [post]
func (h *PasswordResetHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.RequestReset(r.Context(), req.Username); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: resetAcceptedMessage})
}

// ValidateToken reports whether a reset link is still usable
// @Router /auth/password-reset/validate [get]
func (h *PasswordResetHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "token is required")
		return
	}

	if err := h.service.ValidateResetToken(r.Context(), token); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// Confirm sets the new password and consumes the token
// @Router /auth/password-reset/confirm [post]
func (h *PasswordResetHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset"})
}
