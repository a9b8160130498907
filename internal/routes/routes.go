package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes.
// IdentityLink is nil when no external provider is configured; Admin is nil
// when no administrative key is configured.
type Handlers struct {
	Auth          *handlers.AuthHandler
	PasswordReset *handlers.PasswordResetHandler
	Account       *handlers.AccountHandler
	IdentityLink  *handlers.IdentityLinkHandler
	Health        *handlers.HealthHandler
	Admin         *handlers.AdminHandler
}

// RegisterRoutes registers all application routes. Protected routes other
// than the forced password change are closed to subjects flagged by
// changeChecker.
func RegisterRoutes(router chi.Router, h Handlers, tokenManager *auth.TokenManager, changeChecker auth.PasswordChangeChecker, adminKeys *auth.APIKeyManager, rateLimit middleware.RateLimitConfig) {
	router.Get("/health", h.Health.Health)

	// Public routes, limited per client IP
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimit))

		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/password-reset", h.PasswordReset.RequestReset)
		r.Get("/auth/password-reset/validate", h.PasswordReset.ValidateToken)
		r.Post("/auth/password-reset/confirm", h.PasswordReset.Confirm)
		r.Post("/account/email/confirm", h.Account.ConfirmEmailChange)

		if h.IdentityLink != nil {
			r.Get("/auth/external/login", h.IdentityLink.StartLogin)
			// The callback is anonymous for LOGIN and authenticated for LINK
			r.With(auth.OptionalAuthMiddleware(tokenManager)).Get("/auth/external/callback", h.IdentityLink.Callback)
		}
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		r.Post("/account/password/forced", h.Account.ForceChangePassword)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePasswordChangeCleared(changeChecker))

			r.With(middleware.RateLimitByIP(rateLimit)).Post("/account/email", h.Account.RequestEmailChange)
			r.Post("/account/password", h.Account.ChangePassword)

			if h.IdentityLink != nil {
				r.Get("/account/external/connect", h.IdentityLink.StartLink)
				r.Get("/account/external/links", h.IdentityLink.ListLinks)
				r.Delete("/account/external/links/{provider}", h.IdentityLink.DeleteLink)
			}
		})
	})

	if h.Admin != nil && adminKeys != nil && adminKeys.Enabled() {
		router.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(rateLimit))
			r.Use(auth.RequireAPIKey(adminKeys))

			r.Post("/subjects/{subject}/unlock", h.Admin.UnlockSubject)
			r.Post("/subjects/{subject}/require-password-change", h.Admin.RequirePasswordChange)
			r.Get("/subjects/{subject}/logins", h.Admin.ListLogins)
			r.Post("/subjects/{subject}/links/{provider}/disable", h.Admin.DisableLink)
			r.Post("/weak-passwords", h.Admin.ImportWeakPasswords)
		})
	}
}
