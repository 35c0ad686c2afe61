// Package redis provides a Redis-backed execution store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix namespaces every key the store writes.
	DefaultPrefix = "flowguard:"

	scanBatch = 100
)

var _ persistence.ExecutionStore = (*ExecutionStore)(nil)

// ExecutionStore keeps each execution as a JSON string under {prefix}execution:{id} and indexes ids in
// sorted sets scored by start time: {prefix}executions for all records and
// {prefix}executions:{workflowID} per workflow.
type ExecutionStore struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

// NewExecutionStore connects to the Redis server at url (redis://[:password@]host:port/db) and pings it.
func NewExecutionStore(ctx context.Context, logger *slog.Logger, url string) (*ExecutionStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewExecutionStoreWithClient(client, logger, DefaultPrefix), nil
}

// NewExecutionStoreWithClient creates a store over an existing client.
func NewExecutionStoreWithClient(client *redis.Client, logger *slog.Logger, prefix string) *ExecutionStore {
	return &ExecutionStore{
		client: client,
		logger: logger,
		prefix: prefix,
	}
}

func (s *ExecutionStore) recordKey(id string) string {
	return s.prefix + "execution:" + id
}

func (s *ExecutionStore) indexKey(workflowID string) string {
	if workflowID == "" {
		return s.prefix + "executions"
	}

	return s.prefix + "executions:" + workflowID
}

// ExecutionByID returns the execution or an ExecutionError wrapping ErrExecutionNotFound.
func (s *ExecutionStore) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

// Executions walks the matching index newest first until the filter's limit is reached.
func (s *ExecutionStore) Executions(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	limit := filter.EffectiveLimit()
	index := s.indexKey(filter.WorkflowID)
	executions := make([]*models.Execution, 0, limit)

	for start := int64(0); len(executions) < limit; start += scanBatch {
		ids, err := s.client.ZRevRange(ctx, index, start, start+scanBatch-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read execution index: %w", err)
		}

		if len(ids) == 0 {
			break
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.recordKey(id)
		}

		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read executions: %w", err)
		}

		for i, value := range values {
			raw, ok := value.(string)
			if !ok {
				s.logger.WarnContext(ctx, "execution index points to a missing record", "execution_id", ids[i])

				continue
			}

			var execution models.Execution
			if err := json.Unmarshal([]byte(raw), &execution); err != nil {
				return nil, fmt.Errorf("failed to unmarshal execution %s: %w", ids[i], err)
			}

			if filter.Matches(&execution) {
				executions = append(executions, &execution)
			}

			if len(executions) == limit {
				break
			}
		}
	}

	return executions, nil
}

// SaveExecution writes the record and both index entries in one transaction.
func (s *ExecutionStore) SaveExecution(ctx context.Context, execution *models.Execution) error {
	if err := persistence.ValidateID(execution.ID); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	member := redis.Z{Score: float64(execution.StartedAt.UnixMilli()), Member: execution.ID}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(execution.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(""), member)
		pipe.ZAdd(ctx, s.indexKey(execution.WorkflowID), member)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}

	return nil
}

// HealthCheck pings the server.
func (s *ExecutionStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	return nil
}

// Close closes the client.
func (s *ExecutionStore) Close(_ context.Context) error {
	return s.client.Close()
}
