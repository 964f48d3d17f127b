package domain

import "time"

// Channel is the delivery transport for a DeliveryReceipt.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
	ChannelSlack   Channel = "slack"
)

// DeliveryStatus tracks a single recipient's delivery outcome.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryBounced DeliveryStatus = "bounced"
)

// DeliveryReceipt is one per (artifact, recipient).
type DeliveryReceipt struct {
	ID           string
	TenantID     string
	ArtifactID   string
	Channel      Channel
	Recipient    string
	Status       DeliveryStatus
	SentAt       *time.Time
	ErrorMessage *string
}
