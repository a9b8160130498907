package services

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/policy"
	"github.com/BradenHooton/bastion/pkg/logger"
)

// PasswordChangeService handles authenticated password changes
type PasswordChangeService struct {
	credentials CredentialStore
	directory   DirectoryLookup
	policy      PasswordPolicy
	notifier    Notifier
	logger      *slog.Logger
	audit       *logger.AuditLogger
}

// NewPasswordChangeService creates a new PasswordChangeService
func NewPasswordChangeService(
	credentials CredentialStore,
	directory DirectoryLookup,
	policy PasswordPolicy,
	notifier Notifier,
	logger *slog.Logger,
	audit *logger.AuditLogger,
) *PasswordChangeService {
	return &PasswordChangeService{
		credentials: credentials,
		directory:   directory,
		policy:      policy,
		notifier:    notifier,
		logger:      logger,
		audit:       audit,
	}
}

// CheckPolicy evaluates a candidate without changing anything
func (s *PasswordChangeService) CheckPolicy(candidate, subjectID string) policy.Result {
	return s.policy.Validate(candidate, subjectID)
}

// ChangePassword replaces the password after verifying the current one
func (s *PasswordChangeService) ChangePassword(ctx context.Context, subjectID, currentPassword, newPassword string) error {
	ok, err := s.credentials.VerifyPassword(ctx, subjectID, currentPassword)
	if err != nil {
		s.logger.Error("failed to verify current password", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !ok {
		s.audit.LogPasswordChange(ctx, subjectID, "self_service", false)
		return models.ErrBadCredentials
	}

	return s.apply(ctx, subjectID, newPassword, "self_service")
}

// IsChangeRequired reports whether the subject must change password before continuing
func (s *PasswordChangeService) IsChangeRequired(ctx context.Context, subjectID string) (bool, error) {
	return s.credentials.PasswordChangeRequired(ctx, subjectID)
}

// RequireChange flags the subject for a forced change at next login
func (s *PasswordChangeService) RequireChange(ctx context.Context, subjectID string) error {
	return s.credentials.SetPasswordChangeRequired(ctx, subjectID, true)
}

// ForceChangePassword sets a new password without the current one. Only
// valid while the subject is flagged for a forced change.
func (s *PasswordChangeService) ForceChangePassword(ctx context.Context, subjectID, newPassword string) error {
	required, err := s.credentials.PasswordChangeRequired(ctx, subjectID)
	if err != nil {
		s.logger.Error("failed to read forced change flag", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !required {
		return models.ErrUnauthorized
	}

	return s.apply(ctx, subjectID, newPassword, "forced")
}

func (s *PasswordChangeService) apply(ctx context.Context, subjectID, newPassword, method string) error {
	if result := s.policy.Validate(newPassword, subjectID); !result.Valid {
		return result.Err()
	}

	encoded, err := s.credentials.Encode(newPassword)
	if err != nil {
		s.logger.Error("failed to encode password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.credentials.SetPassword(ctx, subjectID, encoded); err != nil {
		s.logger.Error("failed to set password",
			slog.String("subject", subjectID),
			slog.Any("error", err))
		s.audit.LogPasswordChange(ctx, subjectID, method, false)
		return models.ErrInternalServer
	}

	if err := s.credentials.SetPasswordChangeRequired(ctx, subjectID, false); err != nil {
		s.logger.Error("failed to clear forced password change flag",
			slog.String("subject", subjectID),
			slog.Any("error", err))
	}

	s.audit.LogPasswordChange(ctx, subjectID, method, true)

	if email, err := s.directory.EmailOf(ctx, subjectID); err == nil {
		s.notifier.PasswordChanged(ctx, email)
	}
	return nil
}
