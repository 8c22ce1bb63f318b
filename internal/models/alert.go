package models

import "time"

// Channel is the delivery mechanism for an alert.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelPush    Channel = "push"
	ChannelSlack   Channel = "slack"
	ChannelWebhook Channel = "webhook"
)

// AlertStatus tracks the delivery state machine:
// pending -> sent, or pending -> failed after retries are exhausted.
type AlertStatus string

const (
	AlertStatusPending AlertStatus = "pending"
	AlertStatusSent    AlertStatus = "sent"
	AlertStatusFailed  AlertStatus = "failed"
)

// Alert joins a recall to the user or external-channel subscription it
// affects. At most one row exists per (user, recall, product, subscription,
// remedy sequence) combination; the database uniqueness constraint, not
// application pre-checks, enforces this. Rows are never deleted.
type Alert struct {
	ID             string      `json:"id" db:"id"`
	UserID         *string     `json:"user_id,omitempty" db:"user_id"`
	RecallID       string      `json:"recall_id" db:"recall_id"`
	ProductID      *string     `json:"product_id,omitempty" db:"product_id"`
	SubscriptionID *string     `json:"subscription_id,omitempty" db:"subscription_id"`
	// RemedySeq is 0 for the original alert and the remedy-update ordinal
	// for re-alerts triggered by the remedy poller.
	RemedySeq    int         `json:"remedy_seq" db:"remedy_seq"`
	Channel      Channel     `json:"channel" db:"channel"`
	Status       AlertStatus `json:"status" db:"status"`
	ErrorMessage *string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	SentAt       *time.Time  `json:"sent_at,omitempty" db:"sent_at"`
}
