package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// LoginRequest carries form login input plus request metadata
type LoginRequest struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken            string    `json:"access_token"`
	ExpiresAt              time.Time `json:"expires_at"`
	SubjectID              string    `json:"subject_id"`
	PasswordChangeRequired bool      `json:"password_change_required"`
}

// AuthService is the form-login entry point. It wraps credential
// verification with the lockout guard and issues local session tokens.
type AuthService struct {
	credentials CredentialStore
	directory   DirectoryLookup
	lockout     *LockoutGuard
	history     *LoginHistoryService
	tm          *auth.TokenManager
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	credentials CredentialStore,
	directory DirectoryLookup,
	lockout *LockoutGuard,
	history *LoginHistoryService,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		credentials: credentials,
		directory:   directory,
		lockout:     lockout,
		history:     history,
		tm:          tm,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Login authenticates a subject by password. Unknown subjects, wrong
// passwords and locked subjects all return ErrBadCredentials.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	start := time.Now()

	subjectID := strings.TrimSpace(req.Username)
	if subjectID == "" || req.Password == "" {
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrBadCredentials
	}

	if err := s.lockout.CheckBeforeCredentialVerification(ctx, subjectID); err != nil {
		// Failures while locked still count, so the window keeps sliding.
		s.lockout.OnFailure(ctx, subjectID)
		s.auditLogger.LogAuthAttempt(ctx, subjectID, req.IPAddress, req.UserAgent, false, "locked")
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrBadCredentials
	}

	ok, err := s.credentials.VerifyPassword(ctx, subjectID, req.Password)
	if err != nil {
		s.logger.Error("failed to verify credentials", slog.String("subject_id", subjectID), slog.Any("error", err))
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrInternalServer
	}

	if !ok {
		s.lockout.OnFailure(ctx, subjectID)
		s.logger.Info("login failed: invalid credentials")
		s.auditLogger.LogAuthAttempt(ctx, subjectID, req.IPAddress, req.UserAgent, false, "invalid_credentials")
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrBadCredentials
	}

	s.lockout.OnSuccess(ctx, subjectID)

	resp, err := s.issue(ctx, subjectID, models.LoginMethodForm)
	if err != nil {
		return nil, err
	}

	s.history.Record(ctx, subjectID, models.LoginMethodForm, "", req.IPAddress, req.UserAgent)
	s.auditLogger.LogAuthAttempt(ctx, subjectID, req.IPAddress, req.UserAgent, true, "")
	s.logger.Info("subject logged in", slog.String("subject_id", subjectID))

	s.timing.WaitFrom(ctx, start, true)
	return resp, nil
}

// CompleteExternalLogin issues a session for a subject resolved by a
// LOGIN-mode provider callback. History was already recorded by the
// identity link service.
func (s *AuthService) CompleteExternalLogin(ctx context.Context, subjectID string) (*AuthResponse, error) {
	if subjectID == "" {
		return nil, models.ErrUnauthorized
	}
	return s.issue(ctx, subjectID, models.LoginMethodOIDC)
}

func (s *AuthService) issue(ctx context.Context, subjectID, method string) (*AuthResponse, error) {
	email, err := s.directory.EmailOf(ctx, subjectID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to load subject email", slog.String("subject_id", subjectID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	required, err := s.credentials.PasswordChangeRequired(ctx, subjectID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("failed to read forced password change flag", slog.String("subject_id", subjectID), slog.Any("error", err))
	}

	token, expiresAt, err := s.tm.GenerateAccessToken(subjectID, email, method)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("subject_id", subjectID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &AuthResponse{
		AccessToken:            token,
		ExpiresAt:              expiresAt,
		SubjectID:              subjectID,
		PasswordChangeRequired: required,
	}, nil
}
