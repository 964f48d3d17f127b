// Package email holds the C7 delivery senders: one implementation of
// pipeline.Sender per channel (§3's email/webhook/slack).
package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ganeshmittapally/ReportScheduler/internal/pipeline"
	"github.com/resend/resend-go/v2"
)

// ReportEmailSender delivers a finished report artifact by email,
// implementing pipeline.Sender (§4.7 step 7's "Email.send(subject,
// html_body, text_body, url)").
type ReportEmailSender struct {
	client *resend.Client
	from   string
}

func NewReportEmailSender(apiKey, from string) *ReportEmailSender {
	return &ReportEmailSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ReportEmailSender) Send(ctx context.Context, recipient pipeline.Recipient, subject, htmlBody, textBody, artifactURL string) error {
	if htmlBody == "" {
		htmlBody = fmt.Sprintf(`<p>Your report is ready: <a href="%s">%s</a></p>`, artifactURL, artifactURL)
	}
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{recipient.Address},
		Subject: subject,
		Html:    htmlBody,
		Text:    textBody,
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send report email: %w", err)
	}
	return nil
}

// ReportLogSender logs report deliveries instead of sending them; it is the
// sender NewReportSender picks for the local environment.
type ReportLogSender struct {
	logger *slog.Logger
}

func NewReportLogSender(logger *slog.Logger) *ReportLogSender {
	return &ReportLogSender{logger: logger}
}

func (s *ReportLogSender) Send(ctx context.Context, recipient pipeline.Recipient, subject, htmlBody, textBody, artifactURL string) error {
	s.logger.InfoContext(ctx, "report delivery (local dev)",
		"channel", recipient.Channel, "to", recipient.Address, "subject", subject, "url", artifactURL)
	return nil
}

// NewReportSender returns a ReportLogSender when env is "local",
// ReportEmailSender otherwise.
func NewReportSender(env, apiKey, from string, logger *slog.Logger) pipeline.Sender {
	if env == "local" {
		return NewReportLogSender(logger)
	}
	return NewReportEmailSender(apiKey, from)
}
