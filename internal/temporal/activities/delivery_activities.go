package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/recallguard/recallguard-api/internal/dispatch"
)

type Activities struct {
	Dispatcher *dispatch.Dispatcher
}

// DeliverAlertActivity performs one delivery attempt. The workflow's retry
// policy drives repeat attempts; the dispatcher's sent_at check keeps a
// retried attempt from double-sending.
func (a *Activities) DeliverAlertActivity(ctx context.Context, alertID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Delivering alert", "alertID", alertID)

	if err := a.Dispatcher.Deliver(ctx, alertID); err != nil {
		logger.Error("Alert delivery attempt failed", "alertID", alertID, "error", err)
		return err
	}
	return nil
}

// MarkDeliveryFailedActivity records terminal failure once retries are
// exhausted. The alert row is kept with the failure reason.
func (a *Activities) MarkDeliveryFailedActivity(ctx context.Context, alertID, reason string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Marking alert delivery as failed", "alertID", alertID)

	if err := a.Dispatcher.MarkFailed(ctx, alertID, reason); err != nil {
		logger.Error("Failed to record delivery failure", "alertID", alertID, "error", err)
		return err
	}
	return nil
}
