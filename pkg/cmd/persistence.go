// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/dukex/flowguard/pkg/persistence/file"
	"github.com/dukex/flowguard/pkg/persistence/postgresql"
	"github.com/dukex/flowguard/pkg/persistence/redis"
)

// parseProvider returns the URL scheme, defaulting to file for bare paths.
func parseProvider(url string) (string, string) {
	provider, rest, found := strings.Cut(url, "://")
	if !found {
		return "file", url
	}

	return provider, rest
}

// NewWorkflowStore opens the workflow store named by url: file://<dir> (or a bare directory) and
// postgres:// or postgresql:// URLs are supported.
func NewWorkflowStore(ctx context.Context, logger *slog.Logger, url string) (persistence.WorkflowStore, error) {
	provider, rest := parseProvider(url)

	switch provider {
	case "file":
		return file.NewPersistence(rest), nil
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, url)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("unsupported workflow store: %q (allowed: file, postgres)", provider)
	}
}

// NewExecutionStore opens the execution store named by url: file://<dir>, postgres:// or redis://.
func NewExecutionStore(ctx context.Context, logger *slog.Logger, url string) (persistence.ExecutionStore, error) {
	provider, rest := parseProvider(url)

	switch provider {
	case "file":
		return file.NewPersistence(rest), nil
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, url)
		if err != nil {
			return nil, err
		}

		return store, nil
	case "redis", "rediss":
		store, err := redis.NewExecutionStore(ctx, logger, url)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("unsupported execution store: %q (allowed: file, postgres, redis)", provider)
	}
}
