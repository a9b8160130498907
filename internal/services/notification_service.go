package services

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	texttemplate "text/template"
	"time"

	"github.com/BradenHooton/bastion/pkg/logger"
)

// Notifier sends security notifications. Delivery is fire-and-forget:
// failures are logged and never returned to the caller.
type Notifier interface {
	PasswordResetRequested(ctx context.Context, email, resetURL string, expiresAt time.Time)
	PasswordChanged(ctx context.Context, email string)
	EmailChangeRequested(ctx context.Context, newEmail, verifyURL string, expiresAt time.Time)
	EmailChanged(ctx context.Context, oldEmail, newEmail string)
	AccountLocked(ctx context.Context, email string)
}

type notificationTemplate struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

func newNotificationTemplate(name, subject, text, html string) notificationTemplate {
	return notificationTemplate{
		subject: subject,
		text:    texttemplate.Must(texttemplate.New(name).Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name).Parse(html)),
	}
}

const (
	kindPasswordReset   = "password_reset"
	kindPasswordChanged = "password_changed"
	kindEmailChange     = "email_change"
	kindEmailChanged    = "email_changed"
	kindAccountLocked   = "account_locked"
)

var notificationTemplates = map[string]notificationTemplate{
	kindPasswordReset: newNotificationTemplate(kindPasswordReset,
		"Reset your password",
		"A password reset was requested for your account.\n\nReset it here:\n{{.URL}}\n\nThis link expires at {{.ExpiresAt}}. If you did not ask for this, ignore this email.\n",
		`<p>A password reset was requested for your account.</p><p><a href="{{.URL}}">Reset your password</a></p><p>This link expires at {{.ExpiresAt}}. If you did not ask for this, ignore this email.</p>`,
	),
	kindPasswordChanged: newNotificationTemplate(kindPasswordChanged,
		"Your password was changed",
		"The password for your account was changed at {{.At}}.\n\nIf this was not you, reset your password immediately and contact support.\n",
		`<p>The password for your account was changed at {{.At}}.</p><p>If this was not you, reset your password immediately and contact support.</p>`,
	),
	kindEmailChange: newNotificationTemplate(kindEmailChange,
		"Confirm your new email address",
		"Confirm this address for your account:\n{{.URL}}\n\nThis link expires at {{.ExpiresAt}}.\n",
		`<p>Confirm this address for your account:</p><p><a href="{{.URL}}">Confirm email address</a></p><p>This link expires at {{.ExpiresAt}}.</p>`,
	),
	kindEmailChanged: newNotificationTemplate(kindEmailChanged,
		"Your email address was changed",
		"The email address on your account was changed to {{.NewEmail}} at {{.At}}.\n\nIf this was not you, contact support.\n",
		`<p>The email address on your account was changed to {{.NewEmail}} at {{.At}}.</p><p>If this was not you, contact support.</p>`,
	),
	kindAccountLocked: newNotificationTemplate(kindAccountLocked,
		"Unusual sign-in activity",
		"We blocked sign-in to your account after several failed attempts at {{.At}}.\n\nSign-in will be possible again later. If this was not you, consider changing your password.\n",
		`<p>We blocked sign-in to your account after several failed attempts at {{.At}}.</p><p>Sign-in will be possible again later. If this was not you, consider changing your password.</p>`,
	),
}

type notificationData struct {
	URL       string
	ExpiresAt string
	NewEmail  string
	At        string
}

// NotificationService renders security notifications and hands them to a MailSender
type NotificationService struct {
	sender MailSender
	logger *slog.Logger
	now    func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(sender MailSender, logger *slog.Logger) *NotificationService {
	return &NotificationService{sender: sender, logger: logger, now: time.Now}
}

func (s *NotificationService) PasswordResetRequested(ctx context.Context, email, resetURL string, expiresAt time.Time) {
	s.dispatch(ctx, kindPasswordReset, email, notificationData{URL: resetURL, ExpiresAt: formatTime(expiresAt)})
}

func (s *NotificationService) PasswordChanged(ctx context.Context, email string) {
	s.dispatch(ctx, kindPasswordChanged, email, notificationData{At: formatTime(s.now())})
}

func (s *NotificationService) EmailChangeRequested(ctx context.Context, newEmail, verifyURL string, expiresAt time.Time) {
	s.dispatch(ctx, kindEmailChange, newEmail, notificationData{URL: verifyURL, ExpiresAt: formatTime(expiresAt)})
}

func (s *NotificationService) EmailChanged(ctx context.Context, oldEmail, newEmail string) {
	s.dispatch(ctx, kindEmailChanged, oldEmail, notificationData{NewEmail: newEmail, At: formatTime(s.now())})
}

func (s *NotificationService) AccountLocked(ctx context.Context, email string) {
	s.dispatch(ctx, kindAccountLocked, email, notificationData{At: formatTime(s.now())})
}

func (s *NotificationService) dispatch(ctx context.Context, kind, to string, data notificationData) {
	if to == "" {
		s.logger.Warn("notification skipped, no recipient", slog.String("kind", kind))
		return
	}

	runIsolated(ctx, s.logger, "notify_"+kind, func(ctx context.Context) error {
		msg, err := render(kind, to, data)
		if err != nil {
			return err
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			return fmt.Errorf("to %s: %w", logger.SanitizedEmail(to), err)
		}
		return nil
	})
}

func render(kind, to string, data notificationData) (EmailMessage, error) {
	tmpl, ok := notificationTemplates[kind]
	if !ok {
		return EmailMessage{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	var text, html bytes.Buffer
	if err := tmpl.text.Execute(&text, data); err != nil {
		return EmailMessage{}, fmt.Errorf("failed to render %s text: %w", kind, err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return EmailMessage{}, fmt.Errorf("failed to render %s html: %w", kind, err)
	}

	return EmailMessage{To: to, Subject: tmpl.subject, Text: text.String(), HTML: html.String()}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 MST")
}
