package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!!", 15*time.Minute, "bastion")

	token, expiresAt, err := tm.GenerateAccessToken("alice", "alice@example.com", "FORM")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.SubjectID)
	assert.Equal(t, "FORM", claims.Method)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RejectsTamperedAndExpired(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!!", time.Minute, "bastion")
	token, _, err := tm.GenerateAccessToken("alice", "", "FORM")
	require.NoError(t, err)

	other := NewTokenManager("another-secret-32-characters-long", time.Minute, "bastion")
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidSessionToken)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidSessionToken)
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!!", time.Minute, "bastion")
	token, _, err := tm.GenerateAccessToken("alice", "", "FORM")
	require.NoError(t, err)

	var seen string
	handler := AuthMiddleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSubjectFromContext(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", seen)

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestOptionalAuthMiddleware_AllowsAnonymous(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!!", time.Minute, "bastion")

	seen := "unset"
	handler := OptionalAuthMiddleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSubjectFromContext(r)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", seen)
}

func TestLinkSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetLinkSessionCookie(rec, "sess-1", 10*time.Minute, CookieConfig{Secure: true, SameSite: "strict"})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, LinkSessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	assert.Equal(t, "sess-1", GetLinkSessionCookie(req))
	assert.Equal(t, "", GetLinkSessionCookie(httptest.NewRequest(http.MethodGet, "/", nil)))
}
