package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/persistence"
)

// ExecutionRepository handles execution record database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// GetByID returns the execution or an ExecutionError wrapping ErrExecutionNotFound.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	var document []byte

	err := r.db.QueryRowContext(ctx, "SELECT document FROM executions WHERE id = $1", id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to query execution %s: %w", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(document, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

// List returns the executions matching the filter, newest first.
func (r *ExecutionRepository) List(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	query := `
		SELECT document
		FROM executions
		WHERE ($1 = '' OR workflow_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY started_at DESC, id
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, filter.WorkflowID, string(filter.Status), filter.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		var execution models.Execution
		if err := json.Unmarshal(document, &execution); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
		}

		executions = append(executions, &execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// Save inserts or replaces an execution record.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	if err := persistence.ValidateID(execution.ID); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	document, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, status, started_at, document)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id
		  , status = EXCLUDED.status
		  , started_at = EXCLUDED.started_at
		  , document = EXCLUDED.document
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, string(execution.Status), execution.StartedAt, document)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}

	return nil
}
