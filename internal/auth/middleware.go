package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SubjectContextKey is the key for storing session claims in context
	SubjectContextKey contextKey = "subject"
)

// AuthMiddleware rejects requests without a valid bearer access token and
// injects the claims into the request context.
func AuthMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := claimsFromHeader(tm, r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// PasswordChangeChecker reports whether a subject is flagged for a forced
// password change.
type PasswordChangeChecker interface {
	IsChangeRequired(ctx context.Context, subjectID string) (bool, error)
}

// RequirePasswordChangeCleared blocks authenticated subjects that still owe a
// forced password change. It must run after AuthMiddleware. Lookup errors
// fail closed.
func RequirePasswordChangeCleared(checker PasswordChangeChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subjectID := GetSubjectFromContext(r)
			if subjectID == "" {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			required, err := checker.IsChangeRequired(r.Context(), subjectID)
			if err != nil {
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}
			if required {
				pkghttp.WriteError(w, http.StatusForbidden, "password_change_required", "Password change required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuthMiddleware injects claims when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuthMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, ok := claimsFromHeader(tm, r); ok {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimsFromHeader(tm *TokenManager, r *http.Request) (*models.TokenClaims, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}

	claims, err := tm.ValidateToken(parts[1])
	if err != nil {
		return nil, false
	}
	return claims, true
}

// WithClaims stores claims in ctx
func WithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, SubjectContextKey, claims)
}

// GetClaimsFromContext extracts session claims from request context
func GetClaimsFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(SubjectContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetSubjectFromContext returns the authenticated subject, or "" if anonymous
func GetSubjectFromContext(r *http.Request) string {
	if claims := GetClaimsFromContext(r); claims != nil {
		return claims.SubjectID
	}
	return ""
}
