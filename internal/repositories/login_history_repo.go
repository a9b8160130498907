package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
)

// LoginHistoryRepository records successful logins
type LoginHistoryRepository struct {
	db *database.DB
}

// NewLoginHistoryRepository creates a new LoginHistoryRepository
func NewLoginHistoryRepository(db *database.DB) *LoginHistoryRepository {
	return &LoginHistoryRepository{db: db}
}

// Record inserts a login record
func (r *LoginHistoryRepository) Record(ctx context.Context, rec *models.LoginRecord) error {
	query := `
		INSERT INTO login_history (subject_id, method, provider, ip_address, user_agent, logged_in_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		rec.SubjectID,
		rec.Method,
		rec.Provider,
		rec.IPAddress,
		rec.UserAgent,
		rec.LoggedInAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}

	return nil
}

// ListRecent returns the most recent logins for a subject
func (r *LoginHistoryRepository) ListRecent(ctx context.Context, subjectID string, limit int) ([]*models.LoginRecord, error) {
	query := `
		SELECT id, subject_id, method, COALESCE(provider, ''), COALESCE(ip_address, ''), COALESCE(user_agent, ''), logged_in_at
		FROM login_history
		WHERE subject_id = $1
		ORDER BY logged_in_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list login history: %w", err)
	}
	defer rows.Close()

	records := make([]*models.LoginRecord, 0)
	for rows.Next() {
		var rec models.LoginRecord
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.Method, &rec.Provider, &rec.IPAddress, &rec.UserAgent, &rec.LoggedInAt); err != nil {
			return nil, fmt.Errorf("failed to scan login record: %w", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}
