package otelhelper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopTracer_SpansAreNotRecording(t *testing.T) {
	ctx, span := StartSpan(t.Context(), NoopTracer(), "validate", attribute.String(WorkflowIDKey, "wf-1"))
	defer span.End()

	SetError(span, errors.New("boom"))

	assert.NotNil(t, ctx)
	assert.False(t, span.IsRecording())
}
