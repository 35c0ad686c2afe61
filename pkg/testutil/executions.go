package testutil

import (
	"fmt"
	"time"

	"github.com/dukex/flowguard/pkg/models"
)

// TestWorkflowID is the workflow id CreateTestExecution records.
const TestWorkflowID = "wf-test"

// CreateTestExecution creates a successful two-node execution of TestWorkflowID.
func CreateTestExecution(overrides ...func(*models.Execution)) *models.Execution {
	started := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)

	execution := &models.Execution{
		ID:         "exec-1",
		WorkflowID: TestWorkflowID,
		Status:     models.ExecutionStatusSuccess,
		Mode:       "manual",
		StartedAt:  started,
		FinishedAt: &finished,
		NodeRuns: []models.NodeRun{
			CreateTestNodeRun("When clicking Execute", 1),
			CreateTestNodeRun("HTTP Request", 3),
		},
	}

	for _, override := range overrides {
		override(execution)
	}

	return execution
}

// CreateTestNodeRun creates a successful node run with n items shaped {"index": i, "name": "item-i"}.
func CreateTestNodeRun(nodeName string, n int) models.NodeRun {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{"index": float64(i), "name": fmt.Sprintf("item-%d", i)}
	}

	return models.NodeRun{
		NodeName:        nodeName,
		Status:          models.NodeStatusSuccess,
		StartedAt:       time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		ExecutionTimeMs: 12,
		Items:           items,
	}
}

// WithExecutionID sets the execution id.
func WithExecutionID(id string) func(*models.Execution) {
	return func(e *models.Execution) {
		e.ID = id
	}
}

// WithExecutionWorkflow sets the workflow the execution belongs to.
func WithExecutionWorkflow(workflowID string) func(*models.Execution) {
	return func(e *models.Execution) {
		e.WorkflowID = workflowID
	}
}

// WithExecutionStatus sets the execution status.
func WithExecutionStatus(status models.ExecutionStatus) func(*models.Execution) {
	return func(e *models.Execution) {
		e.Status = status
	}
}

// WithStartedAt sets the start time.
func WithStartedAt(started time.Time) func(*models.Execution) {
	return func(e *models.Execution) {
		e.StartedAt = started
	}
}

// WithNodeRuns replaces the node runs.
func WithNodeRuns(runs ...models.NodeRun) func(*models.Execution) {
	return func(e *models.Execution) {
		e.NodeRuns = runs
	}
}
