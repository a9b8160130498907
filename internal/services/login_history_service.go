package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// LoginHistoryRepository defines login history persistence
type LoginHistoryRepository interface {
	Record(ctx context.Context, rec *models.LoginRecord) error
	ListRecent(ctx context.Context, subjectID string, limit int) ([]*models.LoginRecord, error)
}

// LoginHistoryService records successful logins without affecting them
type LoginHistoryService struct {
	repo   LoginHistoryRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewLoginHistoryService creates a new LoginHistoryService
func NewLoginHistoryService(repo LoginHistoryRepository, logger *slog.Logger) *LoginHistoryService {
	return &LoginHistoryService{repo: repo, logger: logger, now: time.Now}
}

// Record stores a login in an isolated scope
func (s *LoginHistoryService) Record(ctx context.Context, subjectID, method, provider, ipAddress, userAgent string) {
	rec := &models.LoginRecord{
		SubjectID:  subjectID,
		Method:     method,
		Provider:   provider,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		LoggedInAt: s.now(),
	}
	runIsolated(ctx, s.logger, "record_login", func(ctx context.Context) error {
		return s.repo.Record(ctx, rec)
	})
}

// Recent returns the latest logins for a subject
func (s *LoginHistoryService) Recent(ctx context.Context, subjectID string, limit int) ([]*models.LoginRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.repo.ListRecent(ctx, subjectID, limit)
}
