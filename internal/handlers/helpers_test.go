package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds session claims for subjectID to the request context
func WithAuthContext(req *http.Request, subjectID string) *http.Request {
	claims := &models.TokenClaims{SubjectID: subjectID, Type: models.TokenTypeAccess}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

// WithURLParam sets a chi route parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// WithURLParams sets several chi route parameters on the request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc                 func(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error)
	CompleteExternalLoginFunc func(ctx context.Context, subjectID string) (*services.AuthResponse, error)
}

func (m *MockAuthService) Login(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error) {
	return m.LoginFunc(ctx, req)
}

func (m *MockAuthService) CompleteExternalLogin(ctx context.Context, subjectID string) (*services.AuthResponse, error) {
	return m.CompleteExternalLoginFunc(ctx, subjectID)
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestResetFunc       func(ctx context.Context, username string) error
	ValidateResetTokenFunc func(ctx context.Context, raw string) error
	ResetPasswordFunc      func(ctx context.Context, raw, newPassword string) error
}

func (m *MockPasswordResetService) RequestReset(ctx context.Context, username string) error {
	return m.RequestResetFunc(ctx, username)
}

func (m *MockPasswordResetService) ValidateResetToken(ctx context.Context, raw string) error {
	return m.ValidateResetTokenFunc(ctx, raw)
}

func (m *MockPasswordResetService) ResetPassword(ctx context.Context, raw, newPassword string) error {
	return m.ResetPasswordFunc(ctx, raw, newPassword)
}

// MockEmailChangeService implements EmailChangeServiceInterface for testing
type MockEmailChangeService struct {
	RequestEmailChangeFunc func(ctx context.Context, subjectID, newEmail, currentPassword string) error
	ConfirmEmailChangeFunc func(ctx context.Context, raw string) error
}

func (m *MockEmailChangeService) RequestEmailChange(ctx context.Context, subjectID, newEmail, currentPassword string) error {
	return m.RequestEmailChangeFunc(ctx, subjectID, newEmail, currentPassword)
}

func (m *MockEmailChangeService) ConfirmEmailChange(ctx context.Context, raw string) error {
	return m.ConfirmEmailChangeFunc(ctx, raw)
}

// MockPasswordChangeService implements PasswordChangeServiceInterface for testing
type MockPasswordChangeService struct {
	ChangePasswordFunc      func(ctx context.Context, subjectID, currentPassword, newPassword string) error
	ForceChangePasswordFunc func(ctx context.Context, subjectID, newPassword string) error
}

func (m *MockPasswordChangeService) ChangePassword(ctx context.Context, subjectID, currentPassword, newPassword string) error {
	return m.ChangePasswordFunc(ctx, subjectID, currentPassword, newPassword)
}

func (m *MockPasswordChangeService) ForceChangePassword(ctx context.Context, subjectID, newPassword string) error {
	return m.ForceChangePasswordFunc(ctx, subjectID, newPassword)
}

// MockIdentityLinkService implements IdentityLinkServiceInterface for testing
type MockIdentityLinkService struct {
	BeginLoginFunc     func(ctx context.Context, sessionID string) (string, error)
	BeginLinkFunc      func(ctx context.Context, sessionID, localSubject string) (string, error)
	HandleCallbackFunc func(ctx context.Context, req services.CallbackRequest) (*services.CallbackResult, error)
	ListLinksFunc      func(ctx context.Context, subjectID string) ([]*models.IdentityLink, error)
	DeleteLinkFunc     func(ctx context.Context, subjectID, provider string) error
}

func (m *MockIdentityLinkService) BeginLogin(ctx context.Context, sessionID string) (string, error) {
	return m.BeginLoginFunc(ctx, sessionID)
}

func (m *MockIdentityLinkService) BeginLink(ctx context.Context, sessionID, localSubject string) (string, error) {
	return m.BeginLinkFunc(ctx, sessionID, localSubject)
}

func (m *MockIdentityLinkService) HandleCallback(ctx context.Context, req services.CallbackRequest) (*services.CallbackResult, error) {
	return m.HandleCallbackFunc(ctx, req)
}

func (m *MockIdentityLinkService) ListLinks(ctx context.Context, subjectID string) ([]*models.IdentityLink, error) {
	return m.ListLinksFunc(ctx, subjectID)
}

func (m *MockIdentityLinkService) DeleteLink(ctx context.Context, subjectID, provider string) error {
	return m.DeleteLinkFunc(ctx, subjectID, provider)
}

// MockProvider implements ExternalProvider for testing
type MockProvider struct {
	ExchangeFunc func(ctx context.Context, code string) (*models.ExternalIdentity, error)
}

func (m *MockProvider) Name() string { return "test-idp" }

func (m *MockProvider) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (m *MockProvider) Exchange(ctx context.Context, code string) (*models.ExternalIdentity, error) {
	return m.ExchangeFunc(ctx, code)
}
