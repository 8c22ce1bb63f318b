package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/repository"
)

// Dispatcher resolves a pending alert and sends it over its channel.
// Deliver is safe to call any number of times for the same alert: sent_at
// is the sole authority on "already delivered", checked before sending
// and enforced again by MarkSent.
type Dispatcher struct {
	alerts        repository.AlertRepository
	recalls       repository.RecallRepository
	users         repository.UserRepository
	subscriptions repository.SubscriptionRepository
	notifiers     map[models.Channel]Notifier
	logger        zerolog.Logger
}

func NewDispatcher(
	alerts repository.AlertRepository,
	recalls repository.RecallRepository,
	users repository.UserRepository,
	subscriptions repository.SubscriptionRepository,
	logger zerolog.Logger,
	notifiers ...Notifier,
) *Dispatcher {
	byChannel := make(map[models.Channel]Notifier, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			byChannel[notifier.Channel()] = notifier
		}
	}
	return &Dispatcher{
		alerts:        alerts,
		recalls:       recalls,
		users:         users,
		subscriptions: subscriptions,
		notifiers:     byChannel,
		logger:        logger.With().Str("component", "dispatcher").Logger(),
	}
}

func (d *Dispatcher) Deliver(ctx context.Context, alertID string) error {
	alert, err := d.alerts.Get(ctx, alertID)
	if err != nil {
		return fmt.Errorf("load alert %s: %w", alertID, err)
	}
	if alert.SentAt != nil {
		d.logger.Debug().Str("alert_id", alertID).Msg("alert already delivered, skipping")
		return nil
	}

	notifier, ok := d.notifiers[alert.Channel]
	if !ok {
		return fmt.Errorf("no notifier configured for channel %s", alert.Channel)
	}

	recall, err := d.recalls.GetByID(ctx, alert.RecallID)
	if err != nil {
		return fmt.Errorf("load recall %s: %w", alert.RecallID, err)
	}

	delivery := Delivery{Alert: alert, Recall: recall}
	delivery.Subject, delivery.Body = buildMessage(recall, alert.RemedySeq)

	if alert.UserID != nil {
		user, err := d.users.Get(ctx, *alert.UserID)
		if err != nil {
			return fmt.Errorf("load user %s: %w", *alert.UserID, err)
		}
		delivery.User = &user
	}
	if alert.SubscriptionID != nil {
		sub, err := d.subscriptions.Get(ctx, *alert.SubscriptionID)
		if err != nil {
			return fmt.Errorf("load subscription %s: %w", *alert.SubscriptionID, err)
		}
		delivery.Subscription = &sub
	}

	if err := notifier.Notify(ctx, delivery); err != nil {
		logNotifyError(d.logger, err, alert.Channel, alert.ID)
		return err
	}

	if err := d.alerts.MarkSent(ctx, alert.ID); err != nil {
		if errors.Is(err, repository.ErrAlreadySent) {
			// A concurrent delivery won the race; the send already happened.
			return nil
		}
		return fmt.Errorf("mark alert %s sent: %w", alert.ID, err)
	}
	return nil
}

// MarkFailed records terminal delivery failure after retries are
// exhausted. The row keeps its history; nothing is deleted.
func (d *Dispatcher) MarkFailed(ctx context.Context, alertID, reason string) error {
	return d.alerts.MarkFailed(ctx, alertID, reason)
}
