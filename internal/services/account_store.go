package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/auth"
)

// CredentialStore verifies and replaces local passwords
type CredentialStore interface {
	VerifyPassword(ctx context.Context, subjectID, password string) (bool, error)
	Encode(password string) (string, error)
	SetPassword(ctx context.Context, subjectID, encoded string) error
	PasswordChangeRequired(ctx context.Context, subjectID string) (bool, error)
	SetPasswordChangeRequired(ctx context.Context, subjectID string, required bool) error
}

// DirectoryLookup answers questions about local subjects
type DirectoryLookup interface {
	Exists(ctx context.Context, subjectID string) (bool, error)
	// EmailOf returns "" when the subject has no address on file.
	EmailOf(ctx context.Context, subjectID string) (string, error)
	EmailAvailable(ctx context.Context, email, subjectID string) (bool, error)
	UpdateEmail(ctx context.Context, subjectID, email string) error
}

// UserRepository defines the user persistence operations AccountStore needs
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	SetPasswordChangeRequired(ctx context.Context, username string, required bool) error
	UpdateEmail(ctx context.Context, username, email string) error
}

// AccountStore implements CredentialStore and DirectoryLookup over the users table
type AccountStore struct {
	users  UserRepository
	hasher *auth.Hasher
}

// NewAccountStore creates a new AccountStore
func NewAccountStore(users UserRepository, hasher *auth.Hasher) *AccountStore {
	return &AccountStore{users: users, hasher: hasher}
}

// VerifyPassword reports false for unknown, disabled or password-less subjects.
func (s *AccountStore) VerifyPassword(ctx context.Context, subjectID, password string) (bool, error) {
	user, err := s.users.GetByUsername(ctx, subjectID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load subject: %w", err)
	}

	if !user.Enabled || user.PasswordHash == "" {
		return false, nil
	}

	if err := s.hasher.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return false, nil
		}
		return false, fmt.Errorf("failed to compare password: %w", err)
	}

	return true, nil
}

func (s *AccountStore) Encode(password string) (string, error) {
	return s.hasher.HashPassword(password)
}

func (s *AccountStore) SetPassword(ctx context.Context, subjectID, encoded string) error {
	return s.users.UpdatePassword(ctx, subjectID, encoded)
}

func (s *AccountStore) PasswordChangeRequired(ctx context.Context, subjectID string) (bool, error) {
	user, err := s.users.GetByUsername(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return user.PasswordChangeRequired, nil
}

func (s *AccountStore) SetPasswordChangeRequired(ctx context.Context, subjectID string, required bool) error {
	return s.users.SetPasswordChangeRequired(ctx, subjectID, required)
}

func (s *AccountStore) Exists(ctx context.Context, subjectID string) (bool, error) {
	_, err := s.users.GetByUsername(ctx, subjectID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *AccountStore) EmailOf(ctx context.Context, subjectID string) (string, error) {
	user, err := s.users.GetByUsername(ctx, subjectID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

// EmailAvailable reports whether email is unused by any subject other than subjectID.
func (s *AccountStore) EmailAvailable(ctx context.Context, email, subjectID string) (bool, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return strings.EqualFold(user.Username, subjectID), nil
}

func (s *AccountStore) UpdateEmail(ctx context.Context, subjectID, email string) error {
	return s.users.UpdateEmail(ctx, subjectID, email)
}
