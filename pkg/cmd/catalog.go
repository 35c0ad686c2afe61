package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowguard/pkg/catalog"
	"github.com/dukex/flowguard/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewCatalog loads the catalog files, or the embedded catalog when none are given.
func NewCatalog(ctx context.Context, logger *slog.Logger, paths []string) (*catalog.Index, error) {
	idx, err := catalog.Load(ctx, logger, paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	logger.InfoContext(ctx, "catalog loaded", "nodes", idx.NodeCount(), "templates", idx.TemplateCount())

	return idx, nil
}

// NewTracer returns an OTLP tracer when enabled and a no-op tracer otherwise.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool, service string) (trace.Tracer, error) {
	if !enabled {
		return otelhelper.NoopTracer(), nil
	}

	tracer, err := otelhelper.NewTracer(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	return tracer, nil
}
