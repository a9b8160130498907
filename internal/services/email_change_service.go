package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/logger"
)

// EmailChangeService moves a subject to a new address after the new address
// proves control of a verification link.
type EmailChangeService struct {
	tokens      *VerificationTokenService
	credentials CredentialStore
	directory   DirectoryLookup
	notifier    Notifier
	logger      *slog.Logger
	audit       *logger.AuditLogger
	baseURL     string
}

// NewEmailChangeService creates a new EmailChangeService
func NewEmailChangeService(
	tokens *VerificationTokenService,
	credentials CredentialStore,
	directory DirectoryLookup,
	notifier Notifier,
	logger *slog.Logger,
	audit *logger.AuditLogger,
	baseURL string,
) *EmailChangeService {
	return &EmailChangeService{
		tokens:      tokens,
		credentials: credentials,
		directory:   directory,
		notifier:    notifier,
		logger:      logger,
		audit:       audit,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestEmailChange sends a verification link to newEmail.
func (s *EmailChangeService) RequestEmailChange(ctx context.Context, subjectID, newEmail, currentPassword string) error {
	newEmail = normalizeEmail(newEmail)
	if subjectID == "" || newEmail == "" {
		return models.ErrBadRequest
	}

	if err := s.tokens.Throttle(ctx, subjectID); err != nil {
		return err
	}

	ok, err := s.credentials.VerifyPassword(ctx, subjectID, currentPassword)
	if err != nil {
		s.logger.Error("failed to verify password for email change", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !ok {
		return models.ErrBadCredentials
	}

	if err := s.ensureAvailable(ctx, newEmail, subjectID); err != nil {
		return err
	}

	raw, err := s.tokens.Mint(ctx, subjectID, newEmail)
	if err != nil {
		return err
	}

	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, url.QueryEscape(raw))
	s.notifier.EmailChangeRequested(ctx, newEmail, verifyURL, s.tokens.expiresFromNow())

	s.logger.Info("email change requested",
		slog.String("subject", subjectID),
		slog.String("new_email", logger.SanitizedEmail(newEmail)))
	return nil
}

func (s *EmailChangeService) ensureAvailable(ctx context.Context, email, subjectID string) error {
	available, err := s.directory.EmailAvailable(ctx, email, subjectID)
	if err != nil {
		s.logger.Error("failed to check email availability", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !available {
		return models.ErrEmailUnavailable
	}
	return nil
}

// ValidateToken checks a token without consuming it
func (s *EmailChangeService) ValidateToken(ctx context.Context, raw string) error {
	_, err := s.tokens.Validate(ctx, raw)
	return err
}

// ConfirmEmailChange consumes the token and applies the new address. The
// address is checked again because another account may have claimed it since
// the link was sent; in that case the token is left unconsumed.
func (s *EmailChangeService) ConfirmEmailChange(ctx context.Context, raw string) error {
	token, err := s.tokens.Validate(ctx, raw)
	if err != nil {
		return err
	}

	if err := s.ensureAvailable(ctx, token.Payload, token.SubjectID); err != nil {
		return err
	}

	token, err = s.tokens.Consume(ctx, raw)
	if err != nil {
		return err
	}

	oldEmail, err := s.directory.EmailOf(ctx, token.SubjectID)
	if err != nil {
		s.logger.Error("failed to read current email", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.directory.UpdateEmail(ctx, token.SubjectID, token.Payload); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrEmailUnavailable
		}
		s.logger.Error("failed to update email",
			slog.String("subject", token.SubjectID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Log(ctx, logger.AuditEvent{
		Type:      logger.AuditTypeAccount,
		EventType: "email_changed",
		SubjectID: token.SubjectID,
		Success:   true,
	})

	if oldEmail != "" && oldEmail != token.Payload {
		s.notifier.EmailChanged(ctx, oldEmail, token.Payload)
	}
	return nil
}
