package execution

import (
	"context"
	"log/slog"

	"github.com/dukex/flowguard/pkg/otelhelper"
	"github.com/dukex/flowguard/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reader serves execution views from an execution store. It never writes.
type Reader struct {
	store  persistence.ExecutionStore
	logger *slog.Logger
	tracer trace.Tracer
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTracer records a span per read.
func WithTracer(tracer trace.Tracer) ReaderOption {
	return func(r *Reader) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewReader creates a reader over the store.
func NewReader(store persistence.ExecutionStore, logger *slog.Logger, opts ...ReaderOption) *Reader {
	r := &Reader{
		store:  store,
		logger: logger,
		tracer: otelhelper.NoopTracer(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// GetExecution loads one execution and renders it in the given mode. An empty mode is summary.
func (r *Reader) GetExecution(ctx context.Context, id string, mode Mode, opts ViewOptions) (*View, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "execution.reader.get",
		attribute.String(otelhelper.ExecutionIDKey, id),
		attribute.String(otelhelper.ViewModeKey, string(mode)),
	)
	defer span.End()

	mode, err := ParseMode(string(mode))
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	execution, err := r.store.ExecutionByID(ctx, id)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID))

	if mode == ModeFull {
		r.logger.DebugContext(ctx, "rendering full execution payload", "execution_id", id, "nodes", len(execution.NodeRuns))
	}

	view, err := Render(execution, mode, opts)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return view, nil
}

// ListExecutions returns preview views of the executions matching the filter, newest first.
func (r *Reader) ListExecutions(ctx context.Context, filter persistence.ExecutionFilter) ([]*View, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "execution.reader.list",
		attribute.String(otelhelper.WorkflowIDKey, filter.WorkflowID),
		attribute.String(otelhelper.ViewModeKey, string(ModePreview)),
	)
	defer span.End()

	executions, err := r.store.Executions(ctx, filter)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	views := make([]*View, 0, len(executions))

	for _, execution := range executions {
		view, err := Render(execution, ModePreview, ViewOptions{})
		if err != nil {
			otelhelper.SetError(span, err)

			return nil, err
		}

		views = append(views, view)
	}

	return views, nil
}
