// Package persistence provides the storage abstraction for workflows and execution records.
package persistence

import (
	"context"

	"github.com/dukex/flowguard/pkg/models"
)

// WorkflowStore persists workflow documents. Implementations return ErrWorkflowNotFound (wrapped in a
// WorkflowError) for unknown ids.
type WorkflowStore interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// ExecutionStore reads execution records written by the execution runtime. SaveExecution exists for the
// runtime side and for tests; flowguard itself only reads.
type ExecutionStore interface {
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	Executions(ctx context.Context, filter ExecutionFilter) ([]*models.Execution, error)
	SaveExecution(ctx context.Context, execution *models.Execution) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters and paginates workflow listings.
type ListWorkflowsOptions struct {
	Tag       string `json:"tag,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	SortBy    string `json:"sort_by,omitempty"`    // created_at, updated_at or name
	SortOrder string `json:"sort_order,omitempty"` // asc or desc
}

// WorkflowListResult is one page of workflows.
type WorkflowListResult struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ExecutionFilter selects execution records. Results are ordered by start time, newest first.
type ExecutionFilter struct {
	WorkflowID string                 `json:"workflow_id,omitempty"`
	Status     models.ExecutionStatus `json:"status,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var allowedSorts = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"name":       true,
}

// Normalize applies defaults and validates the sort parameters against an allowlist.
func (o ListWorkflowsOptions) Normalize() (ListWorkflowsOptions, error) {
	if o.Limit <= 0 || o.Limit > MaxListLimit {
		o.Limit = DefaultListLimit
	}

	if o.Offset < 0 {
		o.Offset = 0
	}

	if o.SortBy == "" {
		o.SortBy = "created_at"
	}

	if o.SortOrder == "" {
		o.SortOrder = "desc"
	}

	if !allowedSorts[o.SortBy] {
		return o, ErrInvalidSortField
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		return o, ErrInvalidSortOrder
	}

	return o, nil
}

// EffectiveLimit returns the limit of the filter with defaults applied.
func (f ExecutionFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		return DefaultListLimit
	}

	return f.Limit
}

// Matches reports whether the execution passes the filter's workflow and status conditions.
func (f ExecutionFilter) Matches(execution *models.Execution) bool {
	if f.WorkflowID != "" && execution.WorkflowID != f.WorkflowID {
		return false
	}

	return f.Status == "" || execution.Status == f.Status
}
