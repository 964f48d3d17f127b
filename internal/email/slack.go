package email

import (
	"context"
	"fmt"

	"github.com/ganeshmittapally/ReportScheduler/internal/pipeline"
	"github.com/slack-go/slack"
)

// SlackSender posts a finished report's link to a Slack channel or user,
// implementing pipeline.Sender for domain.ChannelSlack deliveries.
// recipient.Address is a Slack channel ID (or user ID for a DM).
type SlackSender struct {
	client *slack.Client
}

func NewSlackSender(botToken string) *SlackSender {
	return &SlackSender{client: slack.New(botToken)}
}

func (s *SlackSender) Send(ctx context.Context, recipient pipeline.Recipient, subject, htmlBody, textBody, artifactURL string) error {
	text := fmt.Sprintf("*%s*\n%s", subject, artifactURL)
	_, _, err := s.client.PostMessageContext(ctx, recipient.Address, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	return nil
}
