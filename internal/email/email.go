package email

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs emails instead of sending them. Used when Resend is not
// configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "email")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "email (not sent)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// NewSender returns a ResendSender when an API key is configured and a
// LogSender otherwise.
func NewSender(apiKey, from string, logger *slog.Logger) Sender {
	if apiKey == "" {
		return NewLogSender(logger)
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// StatusChanged renders the note sent to a referrer when their candidate
// moves to a new status.
func StatusChanged(referrerName, candidateName, jobTitle, status string) (subject, body string) {
	greeting := "Hi"
	if referrerName != "" {
		greeting = "Hi " + html.EscapeString(referrerName)
	}
	subject = fmt.Sprintf("Referral update: %s is now %s", candidateName, status)
	body = fmt.Sprintf(
		`<p>%s,</p><p>Your referral <strong>%s</strong> for <strong>%s</strong> has moved to <strong>%s</strong>.</p><p>Thanks for referring!</p>`,
		greeting,
		html.EscapeString(candidateName),
		html.EscapeString(jobTitle),
		html.EscapeString(status),
	)
	return subject, body
}
