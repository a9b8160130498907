package handlers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
)

func newLinkHandler(links *handlers.MockIdentityLinkService, authSvc *handlers.MockAuthService, provider *handlers.MockProvider) *handlers.IdentityLinkHandler {
	if provider == nil {
		provider = &handlers.MockProvider{}
	}
	return handlers.NewIdentityLinkHandler(links, authSvc, provider,
		auth.CookieConfig{SameSite: "strict"}, 10*time.Minute, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func linkCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.LinkSessionCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie set", auth.LinkSessionCookie)
	return nil
}

func callbackRequest(target, sessionID string) *http.Request {
	req := httptest.NewRequest("GET", target, nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: auth.LinkSessionCookie, Value: sessionID})
	}
	return req
}

func TestStartLogin_RedirectsWithFreshSession(t *testing.T) {
	var sessionID string
	links := &handlers.MockIdentityLinkService{
		BeginLoginFunc: func(ctx context.Context, id string) (string, error) {
			sessionID = id
			return "state-123", nil
		},
	}

	w := httptest.NewRecorder()
	newLinkHandler(links, nil, nil).StartLogin(w, httptest.NewRequest("GET", "/auth/external/login", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://idp.example.com/authorize?state=state-123", w.Header().Get("Location"))

	cookie := linkCookie(t, w)
	assert.Equal(t, sessionID, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestStartLink_UsesSessionSubject(t *testing.T) {
	links := &handlers.MockIdentityLinkService{
		BeginLinkFunc: func(ctx context.Context, sessionID, localSubject string) (string, error) {
			assert.Equal(t, "alice", localSubject)
			return "state-456", nil
		},
	}
	handler := newLinkHandler(links, nil, nil)

	// A subject in the query string is ignored
	req := handlers.WithAuthContext(httptest.NewRequest("GET", "/account/external/connect?subject=mallory", nil), "alice")
	w := httptest.NewRecorder()
	handler.StartLink(w, req)

	var resp handlers.AuthorizationResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Contains(t, resp.AuthorizationURL, "state=state-456")
	linkCookie(t, w)

	w = httptest.NewRecorder()
	handler.StartLink(w, httptest.NewRequest("GET", "/account/external/connect", nil))
	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestCallback_LoginIssuesSession(t *testing.T) {
	identity := &models.ExternalIdentity{Provider: "test-idp", Subject: "ext-1", Email: "bob@example.com"}

	links := &handlers.MockIdentityLinkService{
		HandleCallbackFunc: func(ctx context.Context, req services.CallbackRequest) (*services.CallbackResult, error) {
			assert.Equal(t, "sess-1", req.SessionID)
			assert.Equal(t, "st", req.State)
			assert.Equal(t, identity, req.Identity)
			return &services.CallbackResult{Mode: models.LinkModeLogin, SubjectID: "bob"}, nil
		},
	}
	authSvc := &handlers.MockAuthService{
		CompleteExternalLoginFunc: func(ctx context.Context, subjectID string) (*services.AuthResponse, error) {
			return &services.AuthResponse{AccessToken: "tok", SubjectID: subjectID}, nil
		},
	}
	provider := &handlers.MockProvider{
		ExchangeFunc: func(ctx context.Context, code string) (*models.ExternalIdentity, error) {
			assert.Equal(t, "abc", code)
			return identity, nil
		},
	}

	w := httptest.NewRecorder()
	newLinkHandler(links, authSvc, provider).Callback(w, callbackRequest("/auth/external/callback?code=abc&state=st", "sess-1"))

	var resp services.AuthResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "bob", resp.SubjectID)
	assert.Equal(t, -1, linkCookie(t, w).MaxAge, "link session cookie must be cleared")
}

func TestCallback_LinkReusesSession(t *testing.T) {
	links := &handlers.MockIdentityLinkService{
		HandleCallbackFunc: func(ctx context.Context, req services.CallbackRequest) (*services.CallbackResult, error) {
			assert.Equal(t, "alice", req.AuthenticatedSubject)
			return &services.CallbackResult{
				Mode:         models.LinkModeLink,
				SubjectID:    "alice",
				ReuseSession: true,
				Link:         &models.IdentityLink{Provider: "test-idp"},
			}, nil
		},
	}
	authSvc := &handlers.MockAuthService{
		CompleteExternalLoginFunc: func(ctx context.Context, subjectID string) (*services.AuthResponse, error) {
			t.Fatal("LINK mode must not issue a new session")
			return nil, nil
		},
	}
	provider := &handlers.MockProvider{
		ExchangeFunc: func(ctx context.Context, code string) (*models.ExternalIdentity, error) {
			return &models.ExternalIdentity{Provider: "test-idp", Subject: "ext-9"}, nil
		},
	}

	req := handlers.WithAuthContext(callbackRequest("/auth/external/callback?code=abc&state=st", "sess-2"), "alice")
	w := httptest.NewRecorder()
	newLinkHandler(links, authSvc, provider).Callback(w, req)

	var resp handlers.LinkResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Linked)
	assert.Equal(t, "test-idp", resp.Provider)
}

func TestCallback_Errors(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		exchangeErr error
		serviceErr  error
		wantStatus  int
		wantCode    string
	}{
		{"replayed or missing session", "/auth/external/callback?code=abc&state=st", nil, models.ErrLinkSessionInvalid, http.StatusBadRequest, "link_session_invalid"},
		{"no linked account", "/auth/external/callback?code=abc&state=st", nil, models.ErrLinkRequired, http.StatusForbidden, "link_required"},
		{"bind failed", "/auth/external/callback?code=abc&state=st", nil, models.ErrLinkFailed, http.StatusConflict, "link_failed"},
		{"exchange failed", "/auth/external/callback?code=abc&state=st", errors.New("bad code"), models.ErrLinkSessionInvalid, http.StatusUnauthorized, "unauthorized"},
		{"provider error", "/auth/external/callback?error=access_denied&state=st", nil, models.ErrLinkSessionInvalid, http.StatusUnauthorized, "unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			links := &handlers.MockIdentityLinkService{
				HandleCallbackFunc: func(ctx context.Context, req services.CallbackRequest) (*services.CallbackResult, error) {
					called = true
					return nil, tt.serviceErr
				},
			}
			provider := &handlers.MockProvider{
				ExchangeFunc: func(ctx context.Context, code string) (*models.ExternalIdentity, error) {
					if tt.exchangeErr != nil {
						return nil, tt.exchangeErr
					}
					return &models.ExternalIdentity{Provider: "test-idp", Subject: "ext-1"}, nil
				},
			}

			w := httptest.NewRecorder()
			newLinkHandler(links, nil, provider).Callback(w, callbackRequest(tt.target, "sess"))

			require.True(t, called, "the link session must always be consumed")
			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestListAndDeleteLinks(t *testing.T) {
	var deleted string
	links := &handlers.MockIdentityLinkService{
		ListLinksFunc: func(ctx context.Context, subjectID string) ([]*models.IdentityLink, error) {
			return nil, nil
		},
		DeleteLinkFunc: func(ctx context.Context, subjectID, provider string) error {
			if provider == "missing" {
				return models.ErrNotFound
			}
			deleted = subjectID + "/" + provider
			return nil
		},
	}
	handler := newLinkHandler(links, nil, nil)

	w := httptest.NewRecorder()
	handler.ListLinks(w, handlers.WithAuthContext(httptest.NewRequest("GET", "/account/external/links", nil), "alice"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"links":[]}`, w.Body.String())

	req := handlers.WithURLParam(handlers.WithAuthContext(httptest.NewRequest("DELETE", "/account/external/links/test-idp", nil), "alice"), "provider", "test-idp")
	w = httptest.NewRecorder()
	handler.DeleteLink(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "alice/test-idp", deleted)

	req = handlers.WithURLParam(handlers.WithAuthContext(httptest.NewRequest("DELETE", "/account/external/links/missing", nil), "alice"), "provider", "missing")
	w = httptest.NewRecorder()
	handler.DeleteLink(w, req)
	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}
