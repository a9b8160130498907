package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// ExternalProvider is the configured identity provider
type ExternalProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*models.ExternalIdentity, error)
}

// IdentityLinkServiceInterface defines the external login and linking flows
type IdentityLinkServiceInterface interface {
	BeginLogin(ctx context.Context, sessionID string) (string, error)
	BeginLink(ctx context.Context, sessionID, localSubject string) (string, error)
	HandleCallback(ctx context.Context, req services.CallbackRequest) (*services.CallbackResult, error)
	ListLinks(ctx context.Context, subjectID string) ([]*models.IdentityLink, error)
	DeleteLink(ctx context.Context, subjectID, provider string) error
}

// IdentityLinkHandler drives provider redirects for both login and linking
type IdentityLinkHandler struct {
	links      IdentityLinkServiceInterface
	auth       AuthServiceInterface
	provider   ExternalProvider
	cookies    auth.CookieConfig
	sessionTTL time.Duration
	ipConfig   *pkghttp.IPConfig
	logger     *slog.Logger
}

// NewIdentityLinkHandler creates a new IdentityLinkHandler
func NewIdentityLinkHandler(
	links IdentityLinkServiceInterface,
	authService AuthServiceInterface,
	provider ExternalProvider,
	cookies auth.CookieConfig,
	sessionTTL time.Duration,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *IdentityLinkHandler {
	return &IdentityLinkHandler{
		links:      links,
		auth:       authService,
		provider:   provider,
		cookies:    cookies,
		sessionTTL: sessionTTL,
		ipConfig:   ipConfig,
		logger:     logger,
	}
}

// AuthorizationResponse points the client at the provider
type AuthorizationResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// LinkResponse reports a completed link. The caller keeps its current session.
type LinkResponse struct {
	Linked   bool   `json:"linked"`
	Provider string `json:"provider"`
}

// LinksResponse lists the subject's provider links
type LinksResponse struct {
	Links []*models.IdentityLink `json:"links"`
}

// StartLogin redirects an anonymous browser to the provider
// @Router /auth/external/login [get]
func (h *IdentityLinkHandler) StartLogin(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()

	state, err := h.links.BeginLogin(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	auth.SetLinkSessionCookie(w, sessionID, h.sessionTTL, h.cookies)
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// StartLink begins linking the provider account to the signed-in subject.
// The subject comes from the session, never from the request. The URL is
// returned rather than redirected to, because the bearer token cannot
// follow a top-level navigation.
// @Router /account/external/connect [get]
func (h *IdentityLinkHandler) StartLink(w http.ResponseWriter, r *http.Request) {
	subjectID := auth.GetSubjectFromContext(r)
	if subjectID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	sessionID := uuid.NewString()
	state, err := h.links.BeginLink(r.Context(), sessionID, subjectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	auth.SetLinkSessionCookie(w, sessionID, h.sessionTTL, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, AuthorizationResponse{AuthorizationURL: h.provider.AuthCodeURL(state)})
}

// Callback completes a provider redirect in whichever mode it was started.
// The link session is consumed on every path, including provider errors.
// @Router /auth/external/callback [get]
func (h *IdentityLinkHandler) Callback(w http.ResponseWriter, r *http.Request) {
	auth.ClearLinkSessionCookie(w, h.cookies)

	query := r.URL.Query()
	req := services.CallbackRequest{
		SessionID:            auth.GetLinkSessionCookie(r),
		State:                query.Get("state"),
		AuthenticatedSubject: auth.GetSubjectFromContext(r),
		IPAddress:            pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:            pkghttp.UserAgent(r),
	}

	if code := query.Get("code"); code != "" && query.Get("error") == "" {
		identity, err := h.provider.Exchange(r.Context(), code)
		if err != nil {
			h.logger.Warn("external code exchange failed", slog.Any("error", err))
		}
		req.Identity = identity
	} else {
		h.logger.Info("external callback without code", slog.String("provider_error", query.Get("error")))
	}

	// A missing identity still goes through the service so the marker is taken
	result, err := h.links.HandleCallback(r.Context(), req)
	if err != nil {
		if req.Identity == nil && errors.Is(err, models.ErrLinkSessionInvalid) {
			pkghttp.WriteUnauthorized(w, "External authentication failed")
			return
		}
		writeServiceError(w, err)
		return
	}

	if result.Mode == models.LinkModeLink {
		pkghttp.WriteJSON(w, http.StatusOK, LinkResponse{Linked: true, Provider: result.Link.Provider})
		return
	}

	resp, err := h.auth.CompleteExternalLogin(r.Context(), result.SubjectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ListLinks returns the signed-in subject's provider links
// @Router /account/external/links [get]
func (h *IdentityLinkHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	subjectID := auth.GetSubjectFromContext(r)
	if subjectID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	links, err := h.links.ListLinks(r.Context(), subjectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if links == nil {
		links = []*models.IdentityLink{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, LinksResponse{Links: links})
}

// DeleteLink removes one provider link from the signed-in subject
// @Router /account/external/links/{provider} [delete]
func (h *IdentityLinkHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	subjectID := auth.GetSubjectFromContext(r)
	if subjectID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	provider := chi.URLParam(r, "provider")
	if provider == "" {
		pkghttp.WriteBadRequest(w, "provider is required")
		return
	}

	if err := h.links.DeleteLink(r.Context(), subjectID, provider); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
