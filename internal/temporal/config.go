package temporal

import "time"

// TaskQueueName is the Temporal task queue for alert delivery workflows.
const TaskQueueName = "RECALL_DELIVERY"

// DeliveryWorkflowIDPrefix keys delivery workflows by alert ID, so
// re-enqueueing the same alert reuses the running workflow instead of
// starting a duplicate delivery.
const DeliveryWorkflowIDPrefix = "recall-alert-"

// DefaultActivityTimeout bounds a single delivery attempt.
const DefaultActivityTimeout = 1 * time.Minute

// DeliveryParams is the input of the delivery workflow.
type DeliveryParams struct {
	AlertID string
}
