package models

import "time"

// SubscriptionKind distinguishes user-owned saved queries from external
// channel subscriptions (Slack channels, partner webhooks).
type SubscriptionKind string

const (
	SubscriptionKindUser         SubscriptionKind = "user"
	SubscriptionKindSlackChannel SubscriptionKind = "slack_channel"
	SubscriptionKindWebhook      SubscriptionKind = "webhook"
)

// Subscription is a saved query matched fresh against every batch of newly
// ingested recalls; it carries no matching state of its own.
type Subscription struct {
	ID     string           `json:"id" db:"id"`
	Kind   SubscriptionKind `json:"kind" db:"kind"`
	UserID *string          `json:"user_id,omitempty" db:"user_id"`
	// Source scopes the query to one upstream; empty matches all sources.
	Source       Source    `json:"source,omitempty" db:"source"`
	ProductQuery string    `json:"product_query" db:"product_query"`
	SlackChannel string    `json:"slack_channel,omitempty" db:"slack_channel"`
	WebhookURL   string    `json:"webhook_url,omitempty" db:"webhook_url"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Channel returns the delivery channel implied by the subscription kind.
func (s *Subscription) Channel() Channel {
	switch s.Kind {
	case SubscriptionKindSlackChannel:
		return ChannelSlack
	case SubscriptionKindWebhook:
		return ChannelWebhook
	default:
		return ChannelEmail
	}
}
