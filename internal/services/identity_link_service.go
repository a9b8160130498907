package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/auth"
	"github.com/BradenHooton/bastion/pkg/logger"
)

// LinkSessionStore keeps one in-flight provider redirect marker per browser session
type LinkSessionStore interface {
	Put(ctx context.Context, sessionID string, session *models.LinkSession, ttl time.Duration) error
	// Take returns and deletes the marker; ErrNotFound if there is none.
	Take(ctx context.Context, sessionID string) (*models.LinkSession, error)
}

// IdentityLinkRepository defines identity link persistence
type IdentityLinkRepository interface {
	Upsert(ctx context.Context, link *models.IdentityLink) (*models.IdentityLink, error)
	FindEnabledByProviderSubject(ctx context.Context, provider, providerSubject string) (*models.IdentityLink, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*models.IdentityLink, error)
	SetEnabled(ctx context.Context, subjectID, provider string, enabled bool) error
	Delete(ctx context.Context, subjectID, provider string) error
}

// IdentityLinkConfig configures the coordinator for the single external provider
type IdentityLinkConfig struct {
	Provider   string
	SessionTTL time.Duration
}

// CallbackRequest is a verified provider callback bound to a browser session
type CallbackRequest struct {
	SessionID string
	State     string
	// AuthenticatedSubject is the local subject of the current session, if any.
	AuthenticatedSubject string
	Identity             *models.ExternalIdentity
	IPAddress            string
	UserAgent            string
}

// CallbackResult tells the caller how to finish the callback
type CallbackResult struct {
	Mode      models.LinkMode
	SubjectID string
	// ReuseSession is true in LINK mode: the existing local session continues
	// and no new session must be issued.
	ReuseSession bool
	Link         *models.IdentityLink
}

// IdentityLinkService decides whether a provider callback logs a subject in
// or links the provider account to the subject who started the flow.
type IdentityLinkService struct {
	store     LinkSessionStore
	links     IdentityLinkRepository
	directory DirectoryLookup
	history   *LoginHistoryService
	config    IdentityLinkConfig
	logger    *slog.Logger
	audit     *logger.AuditLogger
	now       func() time.Time
	newState  func() (string, error)
}

// NewIdentityLinkService creates a new IdentityLinkService
func NewIdentityLinkService(
	store LinkSessionStore,
	links IdentityLinkRepository,
	directory DirectoryLookup,
	history *LoginHistoryService,
	config IdentityLinkConfig,
	logger *slog.Logger,
	audit *logger.AuditLogger,
) *IdentityLinkService {
	if config.SessionTTL <= 0 {
		config.SessionTTL = 10 * time.Minute
	}

	return &IdentityLinkService{
		store:     store,
		links:     links,
		directory: directory,
		history:   history,
		config:    config,
		logger:    logger,
		audit:     audit,
		now:       time.Now,
		newState:  auth.GenerateToken,
	}
}

// SetClock replaces the time source
func (s *IdentityLinkService) SetClock(now func() time.Time) {
	s.now = now
}

// BeginLogin starts an ordinary external login and returns the OAuth state.
// The marker carries no subject.
func (s *IdentityLinkService) BeginLogin(ctx context.Context, sessionID string) (string, error) {
	return s.begin(ctx, sessionID, models.LinkModeLogin, "")
}

// BeginLink starts linking for localSubject, who must be the authenticated
// subject of sessionID. Any earlier marker on the session is replaced.
func (s *IdentityLinkService) BeginLink(ctx context.Context, sessionID, localSubject string) (string, error) {
	if localSubject == "" {
		return "", models.ErrUnauthorized
	}

	exists, err := s.directory.Exists(ctx, localSubject)
	if err != nil {
		s.logger.Error("failed to look up linking subject", slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	if !exists {
		return "", models.ErrUnauthorized
	}

	return s.begin(ctx, sessionID, models.LinkModeLink, localSubject)
}

func (s *IdentityLinkService) begin(ctx context.Context, sessionID string, mode models.LinkMode, subjectID string) (string, error) {
	if sessionID == "" {
		return "", models.ErrLinkSessionInvalid
	}

	state, err := s.newState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	now := s.now()
	marker := &models.LinkSession{
		Mode:             mode,
		LinkingSubjectID: subjectID,
		Provider:         s.config.Provider,
		State:            state,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.config.SessionTTL),
	}
	if err := s.store.Put(ctx, sessionID, marker, s.config.SessionTTL); err != nil {
		s.logger.Error("failed to store link session", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.logger.Info("external identity flow started",
		slog.String("mode", string(mode)),
		slog.String("provider", s.config.Provider),
		slog.String("subject", subjectID))
	return state, nil
}

// HandleCallback completes a provider redirect. The session marker is removed
// before anything else, so every outcome (including errors) leaves the
// session in NO_SESSION and a replayed callback gets ErrLinkSessionInvalid.
func (s *IdentityLinkService) HandleCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	marker, err := s.take(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if req.Identity == nil || req.Identity.Subject == "" ||
		req.Identity.Provider != marker.Provider ||
		subtle.ConstantTimeCompare([]byte(req.State), []byte(marker.State)) != 1 {
		s.logger.Warn("external callback does not match link session",
			slog.String("mode", string(marker.Mode)))
		return nil, models.ErrLinkSessionInvalid
	}

	switch marker.Mode {
	case models.LinkModeLink:
		return s.completeLink(ctx, marker, req)
	case models.LinkModeLogin:
		return s.completeLogin(ctx, req)
	default:
		return nil, models.ErrLinkSessionInvalid
	}
}

func (s *IdentityLinkService) take(ctx context.Context, sessionID string) (*models.LinkSession, error) {
	if sessionID == "" {
		return nil, models.ErrLinkSessionInvalid
	}

	marker, err := s.store.Take(ctx, sessionID)
	if errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("external callback without link session")
		return nil, models.ErrLinkSessionInvalid
	}
	if err != nil {
		s.logger.Error("failed to read link session", slog.Any("error", err))
		return nil, models.ErrLinkSessionInvalid
	}

	if marker.IsExpired(s.now()) {
		s.logger.Info("link session expired", slog.String("mode", string(marker.Mode)))
		return nil, models.ErrLinkSessionInvalid
	}
	return marker, nil
}

func (s *IdentityLinkService) completeLink(ctx context.Context, marker *models.LinkSession, req CallbackRequest) (*CallbackResult, error) {
	subjectID := marker.LinkingSubjectID
	if subjectID == "" || (req.AuthenticatedSubject != "" && req.AuthenticatedSubject != subjectID) {
		s.logger.Warn("link callback subject does not match initiator",
			slog.String("linking_subject", subjectID))
		return nil, models.ErrLinkSessionInvalid
	}

	claims, err := json.Marshal(req.Identity.Claims)
	if err != nil || req.Identity.Claims == nil {
		claims = []byte(`{}`)
	}

	link, err := s.links.Upsert(ctx, &models.IdentityLink{
		SubjectID:       subjectID,
		Provider:        req.Identity.Provider,
		ProviderSubject: req.Identity.Subject,
		Email:           req.Identity.Email,
		Claims:          claims,
	})
	if err != nil {
		s.logger.Error("failed to link external identity",
			slog.String("subject", subjectID),
			slog.String("provider", req.Identity.Provider),
			slog.Any("error", err))
		s.audit.Log(ctx, logger.AuditEvent{
			Type:          logger.AuditTypeIdentity,
			EventType:     "identity_linked",
			SubjectID:     subjectID,
			Success:       false,
			FailureReason: "bind_failed",
			Metadata:      map[string]string{"provider": req.Identity.Provider},
		})
		return nil, models.ErrLinkFailed
	}

	s.audit.Log(ctx, logger.AuditEvent{
		Type:      logger.AuditTypeIdentity,
		EventType: "identity_linked",
		SubjectID: subjectID,
		Success:   true,
		Metadata:  map[string]string{"provider": link.Provider},
	})

	return &CallbackResult{
		Mode:         models.LinkModeLink,
		SubjectID:    subjectID,
		ReuseSession: true,
		Link:         link,
	}, nil
}

func (s *IdentityLinkService) completeLogin(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	identity := req.Identity
	link, err := s.links.FindEnabledByProviderSubject(ctx, identity.Provider, identity.Subject)
	if errors.Is(err, models.ErrNotFound) {
		s.logger.Info("external login without linked account",
			slog.String("provider", identity.Provider))
		return nil, models.ErrLinkRequired
	}
	if err != nil {
		s.logger.Error("failed to resolve external identity", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if s.history != nil {
		s.history.Record(ctx, link.SubjectID, models.LoginMethodOIDC, identity.Provider, req.IPAddress, req.UserAgent)
	}

	s.audit.Log(ctx, logger.AuditEvent{
		Type:      logger.AuditTypeAuth,
		EventType: "external_login",
		SubjectID: link.SubjectID,
		Success:   true,
		Metadata:  map[string]string{"provider": identity.Provider},
	})

	return &CallbackResult{
		Mode:      models.LinkModeLogin,
		SubjectID: link.SubjectID,
		Link:      link,
	}, nil
}

// ListLinks returns the subject's provider links
func (s *IdentityLinkService) ListLinks(ctx context.Context, subjectID string) ([]*models.IdentityLink, error) {
	return s.links.ListBySubject(ctx, subjectID)
}

// DisableLink stops a provider link from resolving logins without deleting it
func (s *IdentityLinkService) DisableLink(ctx context.Context, subjectID, provider string) error {
	return s.links.SetEnabled(ctx, subjectID, provider, false)
}

// DeleteLink removes a provider link
func (s *IdentityLinkService) DeleteLink(ctx context.Context, subjectID, provider string) error {
	if err := s.links.Delete(ctx, subjectID, provider); err != nil {
		return err
	}

	s.audit.Log(ctx, logger.AuditEvent{
		Type:      logger.AuditTypeIdentity,
		EventType: "identity_unlinked",
		SubjectID: subjectID,
		Success:   true,
		Metadata:  map[string]string{"provider": provider},
	})
	return nil
}
