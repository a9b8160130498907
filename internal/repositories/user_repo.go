package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `username, email, password_hash, enabled, password_change_required, created_at, updated_at`

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var email, passwordHash *string

	err := scanner.Scan(
		&user.Username, &email, &passwordHash, &user.Enabled,
		&user.PasswordChangeRequired, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if email != nil {
		user.Email = *email
	}
	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}

	return &user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	return scanUserRow(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, enabled, password_change_required)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5)
		RETURNING ` + userColumns

	created, err := scanUserRow(r.pool.QueryRow(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.Enabled, user.PasswordChangeRequired,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return created, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE username = $1`

	return r.execOne(ctx, query, username, passwordHash)
}

func (r *UserRepository) SetPasswordChangeRequired(ctx context.Context, username string, required bool) error {
	query := `UPDATE users SET password_change_required = $2, updated_at = NOW() WHERE username = $1`

	return r.execOne(ctx, query, username, required)
}

// UpdateEmail changes the address; ErrConflict if another account already holds it.
func (r *UserRepository) UpdateEmail(ctx context.Context, username, email string) error {
	query := `UPDATE users SET email = $2, updated_at = NOW() WHERE username = $1`

	return r.execOne(ctx, query, username, email)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
