package workflows

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/recallguard/recallguard-api/internal/temporal"
	"github.com/recallguard/recallguard-api/internal/temporal/activities"
)

func DeliveryWorkflow(ctx workflow.Context, params temporal.DeliveryParams) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting delivery workflow", "AlertID", params.AlertID)

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	err := workflow.ExecuteActivity(ctx, a.DeliverAlertActivity, params.AlertID).Get(ctx, nil)
	if err == nil {
		logger.Info("Delivery workflow completed successfully.", "AlertID", params.AlertID)
		return nil
	}

	logger.Error("Delivery retries exhausted.", "AlertID", params.AlertID, "error", err)

	// Record the terminal failure even if the workflow itself was
	// cancelled; the row must never stay pending forever.
	failCtx, _ := workflow.NewDisconnectedContext(ctx)
	failCtx = workflow.WithActivityOptions(failCtx, workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
	})
	if markErr := workflow.ExecuteActivity(failCtx, a.MarkDeliveryFailedActivity, params.AlertID, err.Error()).Get(failCtx, nil); markErr != nil {
		logger.Error("Failed to mark alert as failed.", "AlertID", params.AlertID, "error", markErr)
	}
	return err
}
