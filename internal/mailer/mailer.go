// Package mailer sends transactional email. SendGrid in production, console
// logging when no API key is configured.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/willowchat/willow/internal/retry"
)

// Sender delivers one email. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// New returns a SendGrid-backed sender when apiKey is set, otherwise a
// console sender for development.
func New(apiKey, fromEmail, fromName string, logger *slog.Logger) Sender {
	if apiKey == "" {
		logger.Warn("mailer in console-only mode (set SENDGRID_API_KEY for real delivery)")
		return &ConsoleSender{fromEmail: fromEmail, fromName: fromName, logger: logger}
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		logger:    logger,
	}
}

// SendGridSender delivers via the SendGrid API with retries on transient
// failures.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, html, text string) error {
	from := sgmail.NewEmail(s.fromName, s.fromEmail)
	message := sgmail.NewSingleEmail(from, subject, sgmail.NewEmail("", to), text, html)

	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		resp, err := s.client.SendWithContext(ctx, message)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("sendgrid status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			// Client errors will not improve on retry.
			return retry.Stop(fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("email delivery failed", "to", to, "subject", subject, "error", err)
		return err
	}
	s.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

// ConsoleSender logs emails instead of delivering them.
type ConsoleSender struct {
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

func (s *ConsoleSender) Send(_ context.Context, to, subject, _ string, text string) error {
	s.logger.Info("email (console mode, not delivered)",
		"to", to,
		"from", fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail),
		"subject", subject,
		"body", text,
	)
	return nil
}

var (
	_ Sender = (*SendGridSender)(nil)
	_ Sender = (*ConsoleSender)(nil)
)
