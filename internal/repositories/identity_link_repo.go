package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IdentityLinkRepository stores provider account to local subject mappings
type IdentityLinkRepository struct {
	db *database.DB
}

// NewIdentityLinkRepository creates a new IdentityLinkRepository
func NewIdentityLinkRepository(db *database.DB) *IdentityLinkRepository {
	return &IdentityLinkRepository{db: db}
}

const linkColumns = `id, subject_id, provider, provider_subject, email, claims, enabled, created_at, updated_at`

func scanLinkRow(row rowScanner) (*models.IdentityLink, error) {
	var link models.IdentityLink
	var email *string
	var claims []byte

	err := row.Scan(
		&link.ID, &link.SubjectID, &link.Provider, &link.ProviderSubject,
		&email, &claims, &link.Enabled, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if email != nil {
		link.Email = *email
	}
	link.Claims = json.RawMessage(claims)
	return &link, nil
}

func scanLinkRows(rows pgx.Rows) ([]*models.IdentityLink, error) {
	defer rows.Close()

	links := make([]*models.IdentityLink, 0)
	for rows.Next() {
		link, err := scanLinkRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identity link rows: %w", err)
	}

	return links, nil
}

// Upsert creates or refreshes the mapping keyed by (provider, provider_subject).
// A provider identity already bound to a different subject yields
// ErrIdentityInUse. If the subject already has a mapping for the provider
// under another provider subject, that row is re-pointed.
func (r *IdentityLinkRepository) Upsert(ctx context.Context, link *models.IdentityLink) (*models.IdentityLink, error) {
	claims := link.Claims
	if len(claims) == 0 {
		claims = json.RawMessage(`{}`)
	}

	var saved *models.IdentityLink
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		existing, err := scanLinkRow(tx.QueryRow(ctx,
			`SELECT `+linkColumns+` FROM identity_links WHERE provider = $1 AND provider_subject = $2 FOR UPDATE`,
			link.Provider, link.ProviderSubject,
		))
		switch {
		case err == nil:
			if existing.SubjectID != link.SubjectID {
				return models.ErrIdentityInUse
			}
			saved, err = scanLinkRow(tx.QueryRow(ctx, `
				UPDATE identity_links
				SET email = NULLIF($2, ''), claims = $3, enabled = TRUE, updated_at = NOW()
				WHERE id = $1
				RETURNING `+linkColumns,
				existing.ID, link.Email, []byte(claims),
			))
			return err
		case !errors.Is(err, models.ErrNotFound):
			return err
		}

		saved, err = scanLinkRow(tx.QueryRow(ctx, `
			UPDATE identity_links
			SET provider_subject = $3, email = NULLIF($4, ''), claims = $5, enabled = TRUE, updated_at = NOW()
			WHERE subject_id = $1 AND provider = $2
			RETURNING `+linkColumns,
			link.SubjectID, link.Provider, link.ProviderSubject, link.Email, []byte(claims),
		))
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		saved, err = scanLinkRow(tx.QueryRow(ctx, `
			INSERT INTO identity_links (id, subject_id, provider, provider_subject, email, claims)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
			RETURNING `+linkColumns,
			uuid.New().String(), link.SubjectID, link.Provider, link.ProviderSubject, link.Email, []byte(claims),
		))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert identity link: %w", err)
	}

	return saved, nil
}

// FindEnabledByProviderSubject resolves an enabled mapping for a provider identity
func (r *IdentityLinkRepository) FindEnabledByProviderSubject(ctx context.Context, provider, providerSubject string) (*models.IdentityLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM identity_links
		WHERE provider = $1 AND provider_subject = $2 AND enabled = TRUE
	`

	return scanLinkRow(r.db.Pool.QueryRow(ctx, query, provider, providerSubject))
}

// ListBySubject returns every mapping owned by a subject
func (r *IdentityLinkRepository) ListBySubject(ctx context.Context, subjectID string) ([]*models.IdentityLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM identity_links
		WHERE subject_id = $1
		ORDER BY provider
	`

	rows, err := r.db.Pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity links: %w", err)
	}

	return scanLinkRows(rows)
}

// SetEnabled toggles a subject's mapping for a provider
func (r *IdentityLinkRepository) SetEnabled(ctx context.Context, subjectID, provider string, enabled bool) error {
	query := `
		UPDATE identity_links SET enabled = $3, updated_at = NOW()
		WHERE subject_id = $1 AND provider = $2
	`

	result, err := r.db.Pool.Exec(ctx, query, subjectID, provider, enabled)
	if err != nil {
		return fmt.Errorf("failed to update identity link: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete removes a subject's mapping for a provider
func (r *IdentityLinkRepository) Delete(ctx context.Context, subjectID, provider string) error {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM identity_links WHERE subject_id = $1 AND provider = $2`,
		subjectID, provider,
	)
	if err != nil {
		return fmt.Errorf("failed to delete identity link: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
