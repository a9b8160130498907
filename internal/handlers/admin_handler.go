package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

const (
	defaultLoginHistoryLimit = 20
	maxLoginHistoryLimit     = 100
)

// AccountUnlocker clears a subject's lockout window
type AccountUnlocker interface {
	Unlock(ctx context.Context, subjectID string) error
}

// PasswordChangeRequirer flags a subject for a forced password change
type PasswordChangeRequirer interface {
	RequireChange(ctx context.Context, subjectID string) error
}

// LoginHistoryReader reads recent successful logins
type LoginHistoryReader interface {
	Recent(ctx context.Context, subjectID string, limit int) ([]*models.LoginRecord, error)
}

// WeakPasswordImporter adds entries to the weak password store
type WeakPasswordImporter interface {
	Import(ctx context.Context, passwords []string) (int64, error)
}

// WeakPasswordRefresher reloads the in-memory weak password set
type WeakPasswordRefresher interface {
	Refresh(ctx context.Context) error
}

// LinkDisabler disables a subject's provider link
type LinkDisabler interface {
	DisableLink(ctx context.Context, subjectID, provider string) error
}

// AdminDeps are the operations exposed to administrators. Links may be nil
// when no external provider is configured.
type AdminDeps struct {
	Lockout   AccountUnlocker
	Passwords PasswordChangeRequirer
	History   LoginHistoryReader
	Weak      WeakPasswordImporter
	WeakCache WeakPasswordRefresher
	Links     LinkDisabler
}

// AdminHandler handles administrative HTTP requests.
type AdminHandler struct {
	deps   AdminDeps
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(deps AdminDeps, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: logger}
}

// WeakPasswordImportRequest is the body of POST /admin/weak-passwords
type WeakPasswordImportRequest struct {
	Passwords []string `json:"passwords" validate:"required,min=1,max=10000,dive,required,max=256"`
}

// WeakPasswordImportResponse reports how many entries were new
type WeakPasswordImportResponse struct {
	Imported int64 `json:"imported"`
}

// LoginRecordResponse is one entry of a subject's login history
type LoginRecordResponse struct {
	Method     string    `json:"method"`
	Provider   string    `json:"provider,omitempty"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// UnlockSubject handles POST /admin/subjects/{subject}/unlock
func (h *AdminHandler) UnlockSubject(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	if subject == "" {
		pkghttp.WriteBadRequest(w, "Subject is required")
		return
	}

	if err := h.deps.Lockout.Unlock(r.Context(), subject); err != nil {
		h.logger.Error("admin unlock failed", slog.String("subject", subject), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to unlock subject")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequirePasswordChange handles POST /admin/subjects/{subject}/require-password-change
func (h *AdminHandler) RequirePasswordChange(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	if subject == "" {
		pkghttp.WriteBadRequest(w, "Subject is required")
		return
	}

	if err := h.deps.Passwords.RequireChange(r.Context(), subject); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListLogins handles GET /admin/subjects/{subject}/logins
// Accepts optional query param ?limit=N (1-100, default 20).
func (h *AdminHandler) ListLogins(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	if subject == "" {
		pkghttp.WriteBadRequest(w, "Subject is required")
		return
	}

	limit := defaultLoginHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= maxLoginHistoryLimit {
			limit = n
		}
	}

	records, err := h.deps.History.Recent(r.Context(), subject, limit)
	if err != nil {
		h.logger.Error("failed to read login history", slog.String("subject", subject), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve login history")
		return
	}

	logins := make([]LoginRecordResponse, 0, len(records))
	for _, rec := range records {
		logins = append(logins, LoginRecordResponse{
			Method:     rec.Method,
			Provider:   rec.Provider,
			IPAddress:  rec.IPAddress,
			UserAgent:  rec.UserAgent,
			LoggedInAt: rec.LoggedInAt,
		})
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"logins": logins})
}

// ImportWeakPasswords handles POST /admin/weak-passwords. The in-memory set
// is refreshed after a successful import; a failed refresh only delays the
// new entries until the next scheduled refresh.
func (h *AdminHandler) ImportWeakPasswords(w http.ResponseWriter, r *http.Request) {
	var req WeakPasswordImportRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	imported, err := h.deps.Weak.Import(r.Context(), req.Passwords)
	if err != nil {
		h.logger.Error("weak password import failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to import weak passwords")
		return
	}

	if imported > 0 && h.deps.WeakCache != nil {
		if err := h.deps.WeakCache.Refresh(r.Context()); err != nil {
			h.logger.Warn("weak password refresh after import failed", slog.Any("error", err))
		}
	}

	h.logger.Info("weak passwords imported", slog.Int64("imported", imported))
	pkghttp.WriteJSON(w, http.StatusOK, WeakPasswordImportResponse{Imported: imported})
}

// DisableLink handles POST /admin/subjects/{subject}/links/{provider}/disable
func (h *AdminHandler) DisableLink(w http.ResponseWriter, r *http.Request) {
	if h.deps.Links == nil {
		pkghttp.WriteNotFound(w, "External identity provider is not configured")
		return
	}

	subject := chi.URLParam(r, "subject")
	provider := chi.URLParam(r, "provider")
	if subject == "" || provider == "" {
		pkghttp.WriteBadRequest(w, "Subject and provider are required")
		return
	}

	if err := h.deps.Links.DisableLink(r.Context(), subject, provider); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
