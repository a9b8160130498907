package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerificationTokenRepository handles verification token data access
type VerificationTokenRepository struct {
	pool *pgxpool.Pool
}

// NewVerificationTokenRepository creates a new VerificationTokenRepository
func NewVerificationTokenRepository(db *database.DB) *VerificationTokenRepository {
	return &VerificationTokenRepository{pool: db.Pool}
}

// scanTokenRow populates a VerificationToken from a database row
func scanTokenRow(row rowScanner) (*models.VerificationToken, error) {
	var token models.VerificationToken
	var purpose string
	var consumedAt *time.Time

	err := row.Scan(
		&token.TokenHash, &token.SubjectID, &purpose, &token.Payload,
		&token.IssuedAt, &token.ExpiresAt, &consumedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	token.Purpose = models.Purpose(purpose)
	token.ConsumedAt = consumedAt
	return &token, nil
}

// Create persists a freshly issued token
func (r *VerificationTokenRepository) Create(ctx context.Context, token *models.VerificationToken) error {
	query := `
		INSERT INTO verification_tokens (token_hash, subject_id, purpose, payload, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		token.TokenHash,
		token.SubjectID,
		string(token.Purpose),
		token.Payload,
		token.IssuedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create verification token: %w", database.MapPostgresError(err))
	}

	return nil
}

// GetByHash retrieves a token by its hash
func (r *VerificationTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.VerificationToken, error) {
	query := `
		SELECT token_hash, subject_id, purpose, payload, issued_at, expires_at, consumed_at
		FROM verification_tokens
		WHERE token_hash = $1
	`

	return scanTokenRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// MarkConsumed sets consumed_at only if the token is still unconsumed and
// unexpired. ErrNotFound means another caller won or the token lapsed.
func (r *VerificationTokenRepository) MarkConsumed(ctx context.Context, tokenHash string, at time.Time) error {
	query := `
		UPDATE verification_tokens
		SET consumed_at = $2
		WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > $2
	`

	result, err := r.pool.Exec(ctx, query, tokenHash, at)
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// DeleteUnconsumed removes outstanding tokens for subject and purpose
func (r *VerificationTokenRepository) DeleteUnconsumed(ctx context.Context, subjectID string, purpose models.Purpose) (int64, error) {
	query := `
		DELETE FROM verification_tokens
		WHERE subject_id = $1 AND purpose = $2 AND consumed_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, subjectID, string(purpose))
	if err != nil {
		return 0, fmt.Errorf("failed to delete outstanding tokens: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeleteExpired removes tokens of one purpose that expired before now
func (r *VerificationTokenRepository) DeleteExpired(ctx context.Context, purpose models.Purpose, now time.Time) (int64, error) {
	query := `DELETE FROM verification_tokens WHERE purpose = $1 AND expires_at < $2`

	result, err := r.pool.Exec(ctx, query, string(purpose), now)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}

	return result.RowsAffected(), nil
}
