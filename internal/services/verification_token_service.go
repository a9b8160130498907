package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/auth"
)

// VerificationTokenRepository defines the interface for verification token operations
type VerificationTokenRepository interface {
	Create(ctx context.Context, token *models.VerificationToken) error
	GetByHash(ctx context.Context, tokenHash string) (*models.VerificationToken, error)
	MarkConsumed(ctx context.Context, tokenHash string, at time.Time) error
	DeleteUnconsumed(ctx context.Context, subjectID string, purpose models.Purpose) (int64, error)
	DeleteExpired(ctx context.Context, purpose models.Purpose, now time.Time) (int64, error)
}

// TokenConfig configures one purpose of verification token
type TokenConfig struct {
	Purpose            models.Purpose
	TTL                time.Duration
	MaxRequestsPerHour int
	AttemptRetention   time.Duration
}

// VerificationTokenService issues and redeems single-use tokens for one purpose.
// Only the SHA-256 of a token is stored; the raw value goes to the recipient.
type VerificationTokenService struct {
	repo     VerificationTokenRepository
	counter  *AttemptCounter
	config   TokenConfig
	logger   *slog.Logger
	now      func() time.Time
	generate func() (string, error)
}

// NewVerificationTokenService creates a new VerificationTokenService
func NewVerificationTokenService(
	repo VerificationTokenRepository,
	counter *AttemptCounter,
	config TokenConfig,
	logger *slog.Logger,
) *VerificationTokenService {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
	}
	if config.AttemptRetention <= 0 {
		config.AttemptRetention = 7 * 24 * time.Hour
	}

	return &VerificationTokenService{
		repo:     repo,
		counter:  counter,
		config:   config,
		logger:   logger.With(slog.String("purpose", string(config.Purpose))),
		now:      time.Now,
		generate: auth.GenerateToken,
	}
}

// SetClock replaces the time source
func (s *VerificationTokenService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *VerificationTokenService) expiresFromNow() time.Time {
	return s.now().Add(s.config.TTL)
}

// Throttle enforces the hourly request limit and records the request.
// Counter read errors fail open.
func (s *VerificationTokenService) Throttle(ctx context.Context, subjectID string) error {
	now := s.now()

	count, err := s.counter.Count(ctx, subjectID, s.config.Purpose, now.Add(-time.Hour))
	if err != nil {
		s.logger.Error("failed to read request window, allowing request",
			slog.String("subject", subjectID),
			slog.Any("error", err))
	} else if s.config.MaxRequestsPerHour > 0 && count >= s.config.MaxRequestsPerHour {
		s.logger.Warn("verification token rate limit exceeded",
			slog.String("subject", subjectID),
			slog.Int("requests", count))
		return models.ErrRateLimitExceeded
	}

	s.counter.Record(ctx, subjectID, s.config.Purpose, now)
	return nil
}

// Issue throttles, invalidates the subject's outstanding tokens and returns a
// fresh raw token carrying payload.
func (s *VerificationTokenService) Issue(ctx context.Context, subjectID, payload string) (string, error) {
	if err := s.Throttle(ctx, subjectID); err != nil {
		return "", err
	}
	return s.Mint(ctx, subjectID, payload)
}

// Mint is Issue without the throttle, for flows that called Throttle earlier.
func (s *VerificationTokenService) Mint(ctx context.Context, subjectID, payload string) (string, error) {
	raw, err := s.generate()
	if err != nil {
		s.logger.Error("failed to generate token", slog.Any("error", err))
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	if _, err := s.repo.DeleteUnconsumed(ctx, subjectID, s.config.Purpose); err != nil {
		s.logger.Error("failed to invalidate outstanding tokens",
			slog.String("subject", subjectID),
			slog.Any("error", err))
		return "", fmt.Errorf("failed to invalidate outstanding tokens: %w", err)
	}

	now := s.now()
	token := &models.VerificationToken{
		TokenHash: auth.HashToken(raw),
		SubjectID: subjectID,
		Purpose:   s.config.Purpose,
		Payload:   payload,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.config.TTL),
	}
	if err := s.repo.Create(ctx, token); err != nil {
		s.logger.Error("failed to persist token",
			slog.String("subject", subjectID),
			slog.Any("error", err))
		return "", fmt.Errorf("failed to persist token: %w", err)
	}

	s.logger.Info("verification token issued",
		slog.String("subject", subjectID),
		slog.Time("expires_at", token.ExpiresAt))

	return raw, nil
}

// Validate looks the token up without changing it. Every rejection surfaces
// as ErrInvalidToken; the specific reason is only logged.
func (s *VerificationTokenService) Validate(ctx context.Context, raw string) (*models.VerificationToken, error) {
	if raw == "" {
		return nil, models.ErrInvalidToken
	}

	token, err := s.repo.GetByHash(ctx, auth.HashToken(raw))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("verification token not found")
			return nil, models.ErrInvalidToken
		}
		s.logger.Error("failed to retrieve verification token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if reason := s.rejectReason(token); reason != nil {
		s.logger.Info("verification token rejected",
			slog.String("subject", token.SubjectID),
			slog.String("reason", reason.Error()))
		return nil, models.ErrInvalidToken
	}

	return token, nil
}

func (s *VerificationTokenService) rejectReason(token *models.VerificationToken) error {
	switch {
	case token.Purpose != s.config.Purpose:
		return fmt.Errorf("purpose mismatch: %s", token.Purpose)
	case token.IsConsumed():
		return models.ErrTokenConsumed
	case token.IsExpired(s.now()):
		return models.ErrTokenExpired
	}
	return nil
}

// Consume validates and atomically marks the token used. Of concurrent
// callers presenting the same token exactly one succeeds; the others get
// ErrInvalidToken.
func (s *VerificationTokenService) Consume(ctx context.Context, raw string) (*models.VerificationToken, error) {
	token, err := s.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.repo.MarkConsumed(ctx, token.TokenHash, now); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("verification token lost consume race",
				slog.String("subject", token.SubjectID))
			return nil, models.ErrInvalidToken
		}
		s.logger.Error("failed to consume verification token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token.ConsumedAt = &now
	return token, nil
}

// Sweep deletes expired tokens and request records past retention.
func (s *VerificationTokenService) Sweep(ctx context.Context) error {
	now := s.now()

	deleted, err := s.repo.DeleteExpired(ctx, s.config.Purpose, now)
	if err != nil {
		return fmt.Errorf("failed to sweep expired tokens: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("expired verification tokens swept", slog.Int64("rows_deleted", deleted))
	}

	_, err = s.counter.Sweep(ctx, s.config.Purpose, now.Add(-s.config.AttemptRetention))
	return err
}
