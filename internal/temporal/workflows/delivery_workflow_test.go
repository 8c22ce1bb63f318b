package workflows

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"

	"github.com/recallguard/recallguard-api/internal/temporal"
	"github.com/recallguard/recallguard-api/internal/temporal/activities"
)

func TestDeliveryWorkflowSuccess(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *activities.Activities
	env.OnActivity(a.DeliverAlertActivity, mock.Anything, "alert-1").Return(nil).Once()

	env.ExecuteWorkflow(DeliveryWorkflow, temporal.DeliveryParams{AlertID: "alert-1"})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow returned error: %v", err)
	}
	env.AssertExpectations(t)
}

func TestDeliveryWorkflowRetriesThenMarksFailed(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *activities.Activities
	// Every attempt fails; after the retry policy is exhausted the
	// failure must be recorded.
	env.OnActivity(a.DeliverAlertActivity, mock.Anything, "alert-2").
		Return(errors.New("smtp connection refused")).Times(3)
	env.OnActivity(a.MarkDeliveryFailedActivity, mock.Anything, "alert-2", mock.Anything).
		Return(nil).Once()

	env.ExecuteWorkflow(DeliveryWorkflow, temporal.DeliveryParams{AlertID: "alert-2"})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err == nil {
		t.Fatal("expected workflow error after exhausted retries")
	}
	env.AssertExpectations(t)
}

func TestDeliveryWorkflowSucceedsOnRetry(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *activities.Activities
	env.OnActivity(a.DeliverAlertActivity, mock.Anything, "alert-3").
		Return(errors.New("transient upstream error")).Once()
	env.OnActivity(a.DeliverAlertActivity, mock.Anything, "alert-3").
		Return(nil).Once()

	env.ExecuteWorkflow(DeliveryWorkflow, temporal.DeliveryParams{AlertID: "alert-3"})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow returned error: %v", err)
	}
	env.AssertExpectations(t)
}
