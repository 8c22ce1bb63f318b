package temporal

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/recallguard/recallguard-api/internal/models"
)

// DeliveryEnqueuer starts one delivery workflow per alert. The workflow
// name is referenced by string so the enqueuer does not depend on the
// worker-side packages.
type DeliveryEnqueuer struct {
	client client.Client
	logger zerolog.Logger
}

func NewDeliveryEnqueuer(c client.Client, logger zerolog.Logger) *DeliveryEnqueuer {
	return &DeliveryEnqueuer{
		client: c,
		logger: logger.With().Str("component", "delivery_enqueuer").Logger(),
	}
}

func (e *DeliveryEnqueuer) Enqueue(ctx context.Context, alert models.Alert) error {
	options := client.StartWorkflowOptions{
		ID:        DeliveryWorkflowIDPrefix + alert.ID,
		TaskQueue: TaskQueueName,
	}

	_, err := e.client.ExecuteWorkflow(ctx, options, "DeliveryWorkflow", DeliveryParams{AlertID: alert.ID})
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			// The alert is already in flight; re-enqueueing is a no-op.
			return nil
		}
		return pkgerrors.Wrapf(err, "start delivery workflow for alert %s", alert.ID)
	}

	e.logger.Debug().Str("alert_id", alert.ID).Msg("delivery workflow started")
	return nil
}
