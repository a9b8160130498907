package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// WeakPasswordRepository reads and maintains the weak password set
type WeakPasswordRepository struct {
	pool *pgxpool.Pool
}

// NewWeakPasswordRepository creates a new WeakPasswordRepository
func NewWeakPasswordRepository(db *database.DB) *WeakPasswordRepository {
	return &WeakPasswordRepository{pool: db.Pool}
}

// ListAll loads the entire set
func (r *WeakPasswordRepository) ListAll(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT password FROM weak_passwords`)
	if err != nil {
		return nil, fmt.Errorf("failed to load weak passwords: %w", err)
	}
	defer rows.Close()

	passwords := make([]string, 0, 1024)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan weak password: %w", err)
		}
		passwords = append(passwords, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weak password rows: %w", err)
	}

	return passwords, nil
}

// Import bulk-loads lowercased entries, skipping ones already present
func (r *WeakPasswordRepository) Import(ctx context.Context, passwords []string) (int64, error) {
	cleaned := make([]string, 0, len(passwords))
	for _, p := range passwords {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO weak_passwords (password)
		SELECT DISTINCT unnest($1::text[])
		ON CONFLICT DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query, pq.Array(cleaned))
	if err != nil {
		return 0, fmt.Errorf("failed to import weak passwords: %w", err)
	}

	return result.RowsAffected(), nil
}
