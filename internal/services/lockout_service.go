package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/logger"
)

// LockoutConfig holds brute-force lockout parameters
type LockoutConfig struct {
	MaxAttempts int
	Window      time.Duration
	// Retention is how long failure records are kept before the sweep removes them.
	Retention time.Duration
}

// DefaultLockoutConfig returns 5 failures per 60 minutes, retained for 7 days.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts: 5,
		Window:      60 * time.Minute,
		Retention:   7 * 24 * time.Hour,
	}
}

// LockoutGuard derives lock state from the auth-failure window. Nothing about
// a lock is stored: a subject is locked while MaxAttempts or more failures
// fall inside the trailing Window.
type LockoutGuard struct {
	counter  *AttemptCounter
	config   LockoutConfig
	logger   *slog.Logger
	audit    *logger.AuditLogger
	onLocked func(ctx context.Context, subjectID string)
	now      func() time.Time
}

// NewLockoutGuard creates a new LockoutGuard
func NewLockoutGuard(counter *AttemptCounter, config LockoutConfig, logger *slog.Logger, audit *logger.AuditLogger) *LockoutGuard {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultLockoutConfig().MaxAttempts
	}
	if config.Window <= 0 {
		config.Window = DefaultLockoutConfig().Window
	}
	if config.Retention < config.Window {
		config.Retention = DefaultLockoutConfig().Retention
	}

	return &LockoutGuard{
		counter: counter,
		config:  config,
		logger:  logger,
		audit:   audit,
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (g *LockoutGuard) SetClock(now func() time.Time) {
	g.now = now
}

// OnLocked registers a best-effort callback for the failure that crosses the threshold.
func (g *LockoutGuard) OnLocked(fn func(ctx context.Context, subjectID string)) {
	g.onLocked = fn
}

func (g *LockoutGuard) failures(ctx context.Context, subjectID string) (int, error) {
	return g.counter.Count(ctx, subjectID, models.PurposeAuthFailure, g.now().Add(-g.config.Window))
}

// IsLocked reports whether the subject has reached MaxAttempts within Window.
// Count errors fail open.
func (g *LockoutGuard) IsLocked(ctx context.Context, subjectID string) bool {
	count, err := g.failures(ctx, subjectID)
	if err != nil {
		g.logger.Error("failed to read failure window, allowing attempt",
			slog.String("subject", subjectID),
			slog.Any("error", err))
		return false
	}
	return count >= g.config.MaxAttempts
}

// CheckBeforeCredentialVerification rejects locked subjects with the same
// error as a wrong password.
func (g *LockoutGuard) CheckBeforeCredentialVerification(ctx context.Context, subjectID string) error {
	if g.IsLocked(ctx, subjectID) {
		g.logger.Warn("login rejected for locked subject", slog.String("subject", subjectID))
		return models.ErrBadCredentials
	}
	return nil
}

// OnFailure records an authentication failure. It never reports lock state.
func (g *LockoutGuard) OnFailure(ctx context.Context, subjectID string) {
	g.counter.Record(ctx, subjectID, models.PurposeAuthFailure, g.now())

	count, err := g.failures(ctx, subjectID)
	if err != nil || count != g.config.MaxAttempts {
		return
	}

	g.logger.Warn("subject locked after repeated failures",
		slog.String("subject", subjectID),
		slog.Int("failures", count),
		slog.Duration("window", g.config.Window))
	g.audit.LogLockout(ctx, subjectID, count)

	if g.onLocked != nil {
		runIsolated(ctx, g.logger, "lockout_alert", func(ctx context.Context) error {
			g.onLocked(ctx, subjectID)
			return nil
		})
	}
}

// OnSuccess clears the subject's failures, best-effort.
func (g *LockoutGuard) OnSuccess(ctx context.Context, subjectID string) {
	g.counter.Reset(ctx, subjectID, models.PurposeAuthFailure)
}

// Unlock is the administrative reset. Unlike OnSuccess it reports errors.
func (g *LockoutGuard) Unlock(ctx context.Context, subjectID string) error {
	deleted, err := g.counter.repo.DeleteBySubject(ctx, subjectID, models.PurposeAuthFailure)
	if err != nil {
		return fmt.Errorf("failed to unlock %q: %w", subjectID, err)
	}

	g.logger.Info("subject unlocked by administrator",
		slog.String("subject", subjectID),
		slog.Int64("failures_cleared", deleted))
	g.audit.Log(ctx, logger.AuditEvent{
		Type:      logger.AuditTypeLockout,
		EventType: "account_unlocked",
		SubjectID: subjectID,
		Success:   true,
	})
	return nil
}

// Sweep removes failure records older than Retention.
func (g *LockoutGuard) Sweep(ctx context.Context) error {
	_, err := g.counter.Sweep(ctx, models.PurposeAuthFailure, g.now().Add(-g.config.Retention))
	return err
}
