package models

import "time"

// ExecutionStatus is the outcome of a workflow run as recorded by the execution runtime.
type ExecutionStatus string

const (
	ExecutionStatusSuccess  ExecutionStatus = "success"
	ExecutionStatusError    ExecutionStatus = "error"
	ExecutionStatusRunning  ExecutionStatus = "running"
	ExecutionStatusWaiting  ExecutionStatus = "waiting"
	ExecutionStatusCanceled ExecutionStatus = "canceled"
)

// NodeStatus defines the possible states of a node run.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
	NodeStatusSkipped NodeStatus = "skipped"
)

// Execution is a stored record of one workflow run.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Status     ExecutionStatus `json:"status"`
	Mode       string          `json:"mode,omitempty"` // manual, trigger, webhook, ...
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	NodeRuns   []NodeRun       `json:"node_runs"`
}

// NodeRun holds the output of a single node within an execution.
type NodeRun struct {
	NodeName        string           `json:"node_name"`
	Status          NodeStatus       `json:"status"`
	Error           string           `json:"error,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
	Items           []map[string]any `json:"items"`
}
