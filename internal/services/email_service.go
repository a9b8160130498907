package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/wneessen/go-mail"

	"github.com/BradenHooton/bastion/pkg/logger"
)

// EmailMessage is a rendered outbound message
type EmailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// MailSender delivers rendered messages
type MailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SESAPI is the subset of the SES client used for delivery
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailSender sends emails using AWS SES
type SESMailSender struct {
	client      SESAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESMailSender loads the default AWS credential chain for region
func NewSESMailSender(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESMailSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESMailSenderWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

// NewSESMailSenderWithClient wraps an existing SES client
func NewSESMailSenderWithClient(client SESAPI, fromAddress string, logger *slog.Logger) *SESMailSender {
	return &SESMailSender{client: client, fromAddress: fromAddress, logger: logger}
}

func (s *SESMailSender) Send(ctx context.Context, msg EmailMessage) error {
	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.Text)},
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML)}
	}

	result, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.fromAddress),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body:    body,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}

	s.logger.Info("email sent via SES",
		slog.String("email", logger.SanitizedEmail(msg.To)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// SMTPConfig configures SMTPMailSender
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// SMTPMailSender sends emails over SMTP
type SMTPMailSender struct {
	client *mail.Client
	from   string
	logger *slog.Logger
}

// NewSMTPMailSender creates an SMTP client; no connection is made until Send
func NewSMTPMailSender(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(30 * time.Second),
	}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	if cfg.TLS {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return &SMTPMailSender{client: client, from: cfg.From, logger: logger}, nil
}

func (s *SMTPMailSender) Send(ctx context.Context, msg EmailMessage) error {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email via SMTP: %w", err)
	}

	s.logger.Info("email sent via SMTP", slog.String("email", logger.SanitizedEmail(msg.To)))
	return nil
}

// LogMailSender writes messages to the log instead of delivering them.
// Bodies may contain live tokens, so they are redacted in production.
type LogMailSender struct {
	logger *slog.Logger
	env    string
}

func NewLogMailSender(logger *slog.Logger, env string) *LogMailSender {
	return &LogMailSender{logger: logger, env: env}
}

func (s *LogMailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email (not sent)",
		logger.RedactedAttr("to", msg.To, s.env),
		slog.String("subject", msg.Subject),
		logger.RedactedAttr("body", msg.Text, s.env))
	return nil
}
