package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/pipeline"
	"github.com/ganeshmittapally/ReportScheduler/internal/requestid"
)

// WebhookSender posts a JSON payload describing the finished report to an
// arbitrary HTTP endpoint — the generic delivery channel for integrations
// that aren't email or Slack. The transport is the teacher's Executor HTTP
// client configuration, generalized from job callbacks to report delivery.
type WebhookSender struct {
	client *http.Client
	logger *slog.Logger
}

func NewWebhookSender(logger *slog.Logger) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger: logger.With("component", "webhook_sender"),
	}
}

type webhookPayload struct {
	Subject     string `json:"subject"`
	ArtifactURL string `json:"artifact_url"`
}

// recipient.Address is the destination URL.
func (s *WebhookSender) Send(ctx context.Context, recipient pipeline.Recipient, subject, htmlBody, textBody, artifactURL string) error {
	body, err := json.Marshal(webhookPayload{Subject: subject, ArtifactURL: artifactURL})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient.Address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	reqID := requestid.New()
	req.Header.Set("X-Request-ID", reqID)
	ctx = requestid.WithRequestID(ctx, reqID)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "webhook request failed", "url", recipient.Address, "error", err)
		return fmt.Errorf("webhook request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	s.logger.InfoContext(ctx, "webhook delivered", "url", recipient.Address, "status", resp.StatusCode)
	return nil
}
