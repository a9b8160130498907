package logger

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Audit types
const (
	AuditTypeAuth     = "auth"
	AuditTypeLockout  = "lockout"
	AuditTypeToken    = "token"
	AuditTypeIdentity = "identity"
	AuditTypePassword = "password"
	AuditTypeAccount  = "account"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	Type          string
	EventType     string
	SubjectID     string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security audit events as structured log records.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log emits event at Info when successful and Warn otherwise.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", event.Type),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.SubjectID != "" {
		attrs = append(attrs, slog.String("subject", event.SubjectID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAuthAttempt logs a credential verification outcome
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, subjectID, ipAddress, userAgent string, success bool, reason string) {
	al.Log(ctx, AuditEvent{
		Type:          AuditTypeAuth,
		EventType:     "login",
		SubjectID:     subjectID,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: reason,
	})
}

// LogLockout logs a subject crossing the failure threshold
func (al *AuditLogger) LogLockout(ctx context.Context, subjectID string, failures int) {
	al.Log(ctx, AuditEvent{
		Type:      AuditTypeLockout,
		EventType: "account_locked",
		SubjectID: subjectID,
		Success:   false,
		Metadata:  map[string]string{"failures": strconv.Itoa(failures)},
	})
}

// LogPasswordChange logs password change events
func (al *AuditLogger) LogPasswordChange(ctx context.Context, subjectID, method string, success bool) {
	al.Log(ctx, AuditEvent{
		Type:      AuditTypePassword,
		EventType: "password_change",
		SubjectID: subjectID,
		Success:   success,
		Metadata:  map[string]string{"method": method},
	})
}
