package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/policy"
	"github.com/BradenHooton/bastion/pkg/logger"
)

// PasswordPolicy evaluates a candidate password
type PasswordPolicy interface {
	Validate(candidate, subjectHint string) policy.Result
}

// PasswordResetService implements self-service credential recovery
type PasswordResetService struct {
	tokens      *VerificationTokenService
	credentials CredentialStore
	directory   DirectoryLookup
	policy      PasswordPolicy
	notifier    Notifier
	logger      *slog.Logger
	audit       *logger.AuditLogger
	baseURL     string
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	tokens *VerificationTokenService,
	credentials CredentialStore,
	directory DirectoryLookup,
	policy PasswordPolicy,
	notifier Notifier,
	logger *slog.Logger,
	audit *logger.AuditLogger,
	baseURL string,
) *PasswordResetService {
	return &PasswordResetService{
		tokens:      tokens,
		credentials: credentials,
		directory:   directory,
		policy:      policy,
		notifier:    notifier,
		logger:      logger,
		audit:       audit,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// RequestReset sends a reset link if the subject exists and has an address.
// The response is identical for unknown subjects, apart from the rate limit
// which applies to every requested name.
func (s *PasswordResetService) RequestReset(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.ErrBadRequest
	}

	if err := s.tokens.Throttle(ctx, username); err != nil {
		return err
	}

	exists, err := s.directory.Exists(ctx, username)
	if err != nil {
		s.logger.Error("failed to look up subject for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !exists {
		s.logger.Info("password reset requested for unknown subject")
		return nil
	}

	email, err := s.directory.EmailOf(ctx, username)
	if err != nil {
		s.logger.Error("failed to look up email for password reset",
			slog.String("subject", username),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	if email == "" {
		s.logger.Warn("password reset requested for subject without email", slog.String("subject", username))
		return nil
	}

	raw, err := s.tokens.Mint(ctx, username, "")
	if err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, url.QueryEscape(raw))
	s.notifier.PasswordResetRequested(ctx, email, resetURL, s.tokens.expiresFromNow())

	s.audit.Log(ctx, logger.AuditEvent{
		Type:      logger.AuditTypeToken,
		EventType: "password_reset_requested",
		SubjectID: username,
		Success:   true,
	})
	return nil
}

// ValidateResetToken checks a token without consuming it
func (s *PasswordResetService) ValidateResetToken(ctx context.Context, raw string) error {
	_, err := s.tokens.Validate(ctx, raw)
	return err
}

// ResetPassword consumes the token and sets newPassword. Policy violations are
// reported before the token is consumed so the link stays usable.
func (s *PasswordResetService) ResetPassword(ctx context.Context, raw, newPassword string) error {
	token, err := s.tokens.Validate(ctx, raw)
	if err != nil {
		return err
	}

	if result := s.policy.Validate(newPassword, token.SubjectID); !result.Valid {
		return result.Err()
	}

	encoded, err := s.credentials.Encode(newPassword)
	if err != nil {
		s.logger.Error("failed to encode password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	token, err = s.tokens.Consume(ctx, raw)
	if err != nil {
		return err
	}

	if err := s.credentials.SetPassword(ctx, token.SubjectID, encoded); err != nil {
		s.logger.Error("failed to set password after reset",
			slog.String("subject", token.SubjectID),
			slog.Any("error", err))
		s.audit.LogPasswordChange(ctx, token.SubjectID, "reset", false)
		return models.ErrInternalServer
	}

	if err := s.credentials.SetPasswordChangeRequired(ctx, token.SubjectID, false); err != nil {
		s.logger.Error("failed to clear forced password change flag",
			slog.String("subject", token.SubjectID),
			slog.Any("error", err))
	}

	s.audit.LogPasswordChange(ctx, token.SubjectID, "reset", true)
	s.logger.Info("password reset completed", slog.String("subject", token.SubjectID))

	if email, err := s.directory.EmailOf(ctx, token.SubjectID); err == nil {
		s.notifier.PasswordChanged(ctx, email)
	}
	return nil
}
