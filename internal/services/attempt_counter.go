package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// AttemptRepository defines the persistence operations behind AttemptCounter
type AttemptRepository interface {
	Record(ctx context.Context, subjectID string, purpose models.Purpose, at time.Time) error
	CountSince(ctx context.Context, subjectID string, purpose models.Purpose, since time.Time) (int, error)
	DeleteBySubject(ctx context.Context, subjectID string, purpose models.Purpose) (int64, error)
	DeleteOlderThan(ctx context.Context, purpose models.Purpose, cutoff time.Time) (int64, error)
}

// AttemptCounter is a sliding-window counter over append-only attempt records.
// Writes are fault-isolated: a storage outage never reaches the caller.
type AttemptCounter struct {
	repo   AttemptRepository
	logger *slog.Logger
}

// NewAttemptCounter creates a new AttemptCounter
func NewAttemptCounter(repo AttemptRepository, logger *slog.Logger) *AttemptCounter {
	return &AttemptCounter{repo: repo, logger: logger}
}

// Count returns the attempts recorded at or after since.
func (c *AttemptCounter) Count(ctx context.Context, subjectID string, purpose models.Purpose, since time.Time) (int, error) {
	count, err := c.repo.CountSince(ctx, subjectID, purpose, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s attempts: %w", purpose, err)
	}
	return count, nil
}

// Record appends an attempt in an isolated scope. Failures are logged only.
func (c *AttemptCounter) Record(ctx context.Context, subjectID string, purpose models.Purpose, at time.Time) {
	runIsolated(ctx, c.logger, "record_attempt", func(ctx context.Context) error {
		if err := c.repo.Record(ctx, subjectID, purpose, at); err != nil {
			return fmt.Errorf("subject %q purpose %s: %w", subjectID, purpose, err)
		}
		return nil
	})
}

// Reset deletes a subject's records for purpose, best-effort.
func (c *AttemptCounter) Reset(ctx context.Context, subjectID string, purpose models.Purpose) {
	runIsolated(ctx, c.logger, "reset_attempts", func(ctx context.Context) error {
		_, err := c.repo.DeleteBySubject(ctx, subjectID, purpose)
		return err
	})
}

// Sweep deletes records of purpose older than cutoff.
func (c *AttemptCounter) Sweep(ctx context.Context, purpose models.Purpose, cutoff time.Time) (int64, error) {
	deleted, err := c.repo.DeleteOlderThan(ctx, purpose, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep %s attempts: %w", purpose, err)
	}
	if deleted > 0 {
		c.logger.Info("attempt records swept",
			slog.String("purpose", string(purpose)),
			slog.Int64("rows_deleted", deleted))
	}
	return deleted, nil
}
