package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/models"
)

func TestRequestEmailChange(t *testing.T) {
	tests := []struct {
		name       string
		subject    string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"accepted", "bob", nil, http.StatusAccepted, ""},
		{"anonymous", "", nil, http.StatusUnauthorized, "unauthorized"},
		{"wrong password", "bob", models.ErrBadCredentials, http.StatusUnauthorized, "unauthorized"},
		{"address taken", "bob", models.ErrEmailUnavailable, http.StatusConflict, "conflict"},
		{"rate limited", "bob", models.ErrRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &handlers.MockEmailChangeService{
				RequestEmailChangeFunc: func(ctx context.Context, subjectID, newEmail, currentPassword string) error {
					assert.Equal(t, "bob", subjectID)
					assert.Equal(t, "new@example.com", newEmail)
					return tt.err
				},
			}
			handler := handlers.NewAccountHandler(mock, nil)

			req := handlers.NewTestRequest(t, "POST", "/account/email", handlers.EmailChangeRequest{
				NewEmail:        "new@example.com",
				CurrentPassword: "current-pass",
			})
			if tt.subject != "" {
				req = handlers.WithAuthContext(req, tt.subject)
			}

			w := httptest.NewRecorder()
			handler.RequestEmailChange(w, req)

			if tt.wantCode == "" {
				assert.Equal(t, tt.wantStatus, w.Code)
				return
			}
			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestRequestEmailChange_InvalidAddress(t *testing.T) {
	handler := handlers.NewAccountHandler(&handlers.MockEmailChangeService{}, nil)

	req := handlers.WithAuthContext(handlers.NewTestRequest(t, "POST", "/account/email", handlers.EmailChangeRequest{
		NewEmail:        "not-an-email",
		CurrentPassword: "current-pass",
	}), "bob")

	w := httptest.NewRecorder()
	handler.RequestEmailChange(w, req)

	resp := handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.Contains(t, resp.Message, "new_email")
}

func TestConfirmEmailChange(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"applied", nil, http.StatusOK},
		{"invalid token", models.ErrInvalidToken, http.StatusBadRequest},
		{"address claimed since", models.ErrEmailUnavailable, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &handlers.MockEmailChangeService{
				ConfirmEmailChangeFunc: func(ctx context.Context, raw string) error { return tt.err },
			}

			w := httptest.NewRecorder()
			handlers.NewAccountHandler(mock, nil).ConfirmEmailChange(w,
				handlers.NewTestRequest(t, "POST", "/account/email/confirm", handlers.TokenRequest{Token: "tok"}))

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestChangePassword(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"changed", nil, http.StatusOK, ""},
		{"wrong current password", models.ErrBadCredentials, http.StatusUnauthorized, "unauthorized"},
		{"policy", &models.PolicyViolationError{Violations: []string{"too short"}}, http.StatusUnprocessableEntity, "policy_violation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &handlers.MockPasswordChangeService{
				ChangePasswordFunc: func(ctx context.Context, subjectID, currentPassword, newPassword string) error {
					assert.Equal(t, "bob", subjectID)
					return tt.err
				},
			}

			req := handlers.WithAuthContext(handlers.NewTestRequest(t, "POST", "/account/password", handlers.PasswordChangeRequest{
				CurrentPassword: "old-pass",
				NewPassword:     "new-pass-123",
			}), "bob")

			w := httptest.NewRecorder()
			handlers.NewAccountHandler(nil, mock).ChangePassword(w, req)

			if tt.wantCode == "" {
				assert.Equal(t, tt.wantStatus, w.Code)
				return
			}
			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestForceChangePassword_NotPending(t *testing.T) {
	mock := &handlers.MockPasswordChangeService{
		ForceChangePasswordFunc: func(ctx context.Context, subjectID, newPassword string) error {
			return models.ErrUnauthorized
		},
	}

	req := handlers.WithAuthContext(handlers.NewTestRequest(t, "POST", "/account/password/forced",
		handlers.ForcedPasswordChangeRequest{NewPassword: "new-pass-123"}), "bob")

	w := httptest.NewRecorder()
	handlers.NewAccountHandler(nil, mock).ForceChangePassword(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusForbidden, "forbidden")
}
