package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
)

// AttemptRepository persists sliding-window attempt records. Every statement
// runs directly on the pool so it never joins a caller's transaction.
type AttemptRepository struct {
	db *database.DB
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Record appends one attempt for subject and purpose
func (r *AttemptRepository) Record(ctx context.Context, subjectID string, purpose models.Purpose, at time.Time) error {
	query := `
		INSERT INTO security_attempts (subject_id, purpose, occurred_at)
		VALUES ($1, $2, $3)
	`

	if _, err := r.db.Pool.Exec(ctx, query, subjectID, string(purpose), at); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	return nil
}

// CountSince returns the number of attempts recorded at or after since
func (r *AttemptRepository) CountSince(ctx context.Context, subjectID string, purpose models.Purpose, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM security_attempts
		WHERE subject_id = $1 AND purpose = $2 AND occurred_at >= $3
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, subjectID, string(purpose), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	return count, nil
}

// DeleteBySubject removes every attempt of one purpose for a subject
func (r *AttemptRepository) DeleteBySubject(ctx context.Context, subjectID string, purpose models.Purpose) (int64, error) {
	query := `DELETE FROM security_attempts WHERE subject_id = $1 AND purpose = $2`

	result, err := r.db.Pool.Exec(ctx, query, subjectID, string(purpose))
	if err != nil {
		return 0, fmt.Errorf("failed to delete attempts: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeleteOlderThan removes attempts of one purpose recorded before cutoff
func (r *AttemptRepository) DeleteOlderThan(ctx context.Context, purpose models.Purpose, cutoff time.Time) (int64, error) {
	query := `DELETE FROM security_attempts WHERE purpose = $1 AND occurred_at < $2`

	result, err := r.db.Pool.Exec(ctx, query, string(purpose), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep attempts: %w", err)
	}

	return result.RowsAffected(), nil
}
