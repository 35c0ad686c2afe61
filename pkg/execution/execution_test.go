package execution

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/flowguard/pkg/mocks"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/otelhelper"
	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/dukex/flowguard/pkg/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newReader(store persistence.ExecutionStore) *Reader {
	return NewReader(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func render(t *testing.T, execution *models.Execution, mode Mode, opts ViewOptions) *View {
	t.Helper()

	view, err := Render(execution, mode, opts)
	require.NoError(t, err)

	return view
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSummary, mode)

	for _, m := range []Mode{ModePreview, ModeSummary, ModeFiltered, ModeFull} {
		parsed, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	_, err = ParseMode("everything")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestRender_Modes(t *testing.T) {
	execution := testutil.CreateTestExecution()

	testCases := []struct {
		name          string
		mode          Mode
		opts          ViewOptions
		expectedNodes []string
		expectedItems []int
		truncated     []bool
	}{
		{name: "preview", mode: ModePreview, expectedNodes: []string{"When clicking Execute", "HTTP Request"}, expectedItems: []int{0, 0}, truncated: []bool{true, true}},
		{name: "summary", mode: ModeSummary, expectedNodes: []string{"When clicking Execute", "HTTP Request"}, expectedItems: []int{1, 2}, truncated: []bool{false, true}},
		{name: "empty mode is summary", mode: "", expectedNodes: []string{"When clicking Execute", "HTTP Request"}, expectedItems: []int{1, 2}, truncated: []bool{false, true}},
		{name: "full", mode: ModeFull, expectedNodes: []string{"When clicking Execute", "HTTP Request"}, expectedItems: []int{1, 3}, truncated: []bool{false, false}},
		{
			name:          "filtered by node",
			mode:          ModeFiltered,
			opts:          ViewOptions{NodeNames: []string{"HTTP Request"}, ItemsLimit: 1},
			expectedNodes: []string{"HTTP Request"},
			expectedItems: []int{1},
			truncated:     []bool{true},
		},
		{
			name:          "filtered with every item",
			mode:          ModeFiltered,
			opts:          ViewOptions{ItemsLimit: -1},
			expectedNodes: []string{"When clicking Execute", "HTTP Request"},
			expectedItems: []int{1, 3},
			truncated:     []bool{false, false},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			view := render(t, execution, tc.mode, tc.opts)

			require.Len(t, view.Nodes, len(tc.expectedNodes))
			assert.Equal(t, 4, view.TotalItems)
			assert.Equal(t, int64(1500), view.DurationMs)

			for i, node := range view.Nodes {
				assert.Equal(t, tc.expectedNodes[i], node.Name)
				assert.Len(t, node.Items, tc.expectedItems[i])
				assert.Equal(t, tc.truncated[i], node.Truncated)
				assert.Equal(t, models.NodeStatusSuccess, node.Status)
			}
		})
	}
}

func TestRender_FilteredMissingNodes(t *testing.T) {
	view := render(t, testutil.CreateTestExecution(), ModeFiltered, ViewOptions{NodeNames: []string{"HTTP Request", "Slack"}})

	require.Len(t, view.Nodes, 1)
	assert.Equal(t, []string{"Slack"}, view.MissingNodes)
}

func TestRender_DoesNotAliasItems(t *testing.T) {
	execution := testutil.CreateTestExecution()
	before := testutil.CreateTestExecution()

	view := render(t, execution, ModeFull, ViewOptions{})
	view.Nodes[1].Items[0]["name"] = "changed"

	assert.Empty(t, cmp.Diff(before, execution))
}

func TestRender_PreviewSizeIsIndependentOfItemCount(t *testing.T) {
	size := func(items int, mode Mode) int {
		execution := testutil.CreateTestExecution(testutil.WithNodeRuns(
			testutil.CreateTestNodeRun("Trigger", 1),
			testutil.CreateTestNodeRun("Transform", items),
		))

		data, err := json.Marshal(render(t, execution, mode, ViewOptions{}))
		require.NoError(t, err)

		return len(data)
	}

	// Same digit count in item_count and total_items so the sizes compare exactly.
	assert.Equal(t, size(200, ModePreview), size(900, ModePreview))
	assert.Equal(t, size(200, ModeSummary), size(900, ModeSummary))
	assert.Greater(t, size(900, ModeFull), 3*size(200, ModeFull))
}

func TestRender_ErrorRun(t *testing.T) {
	failed := testutil.CreateTestNodeRun("HTTP Request", 0)
	failed.Status = models.NodeStatusError
	failed.Error = "503 Service Unavailable"

	execution := testutil.CreateTestExecution(
		testutil.WithExecutionStatus(models.ExecutionStatusError),
		testutil.WithNodeRuns(testutil.CreateTestNodeRun("Trigger", 1), failed),
	)
	execution.FinishedAt = nil

	view := render(t, execution, ModePreview, ViewOptions{})

	assert.Equal(t, models.ExecutionStatusError, view.Status)
	assert.Zero(t, view.DurationMs)
	assert.Equal(t, "503 Service Unavailable", view.Nodes[1].Error)
	assert.False(t, view.Nodes[1].Truncated)
}

func TestReader_GetExecution(t *testing.T) {
	ctx := context.Background()
	store := &mocks.MockExecutionStore{}
	store.On("ExecutionByID", mock.Anything, "exec-1").Return(testutil.CreateTestExecution(), nil)
	store.On("ExecutionByID", mock.Anything, "missing").Return(nil, persistence.NewExecutionError("GetByID", "missing", persistence.ErrExecutionNotFound))

	reader := newReader(store)

	view, err := reader.GetExecution(ctx, "exec-1", "", ViewOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeSummary, view.ViewMode)

	_, err = reader.GetExecution(ctx, "missing", ModePreview, ViewOptions{})
	assert.True(t, persistence.IsExecutionNotFound(err))

	_, err = reader.GetExecution(ctx, "exec-1", "raw", ViewOptions{})
	assert.ErrorIs(t, err, ErrInvalidMode)

	store.AssertNumberOfCalls(t, "ExecutionByID", 2)
}

func TestReader_ListExecutions(t *testing.T) {
	ctx := context.Background()
	filter := persistence.ExecutionFilter{WorkflowID: testutil.TestWorkflowID, Limit: 5}

	store := &mocks.MockExecutionStore{}
	store.On("Executions", mock.Anything, filter).Return([]*models.Execution{
		testutil.CreateTestExecution(testutil.WithExecutionID("exec-2")),
		testutil.CreateTestExecution(testutil.WithExecutionID("exec-1")),
	}, nil)
	store.On("Executions", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	views, err := newReader(store).ListExecutions(ctx, filter)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "exec-2", views[0].ID)

	for _, view := range views {
		assert.Equal(t, ModePreview, view.ViewMode)

		for _, node := range view.Nodes {
			assert.Empty(t, node.Items)
		}
	}

	_, err = newReader(store).ListExecutions(ctx, persistence.ExecutionFilter{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestReader_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	store := &mocks.MockExecutionStore{}
	store.On("ExecutionByID", mock.Anything, "exec-1").Return(testutil.CreateTestExecution(), nil)
	store.On("Executions", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	reader := NewReader(store, slog.New(slog.NewTextHandler(io.Discard, nil)), WithTracer(provider.Tracer("test")))

	_, err := reader.GetExecution(t.Context(), "exec-1", ModeFull, ViewOptions{})
	require.NoError(t, err)

	_, err = reader.ListExecutions(t.Context(), persistence.ExecutionFilter{WorkflowID: testutil.TestWorkflowID})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	get := spans[0]
	assert.Equal(t, "execution.reader.get", get.Name())
	assert.Contains(t, get.Attributes(), attribute.String(otelhelper.ExecutionIDKey, "exec-1"))
	assert.Contains(t, get.Attributes(), attribute.String(otelhelper.ViewModeKey, string(ModeFull)))
	assert.Contains(t, get.Attributes(), attribute.String(otelhelper.WorkflowIDKey, testutil.TestWorkflowID))
	assert.Equal(t, codes.Unset, get.Status().Code)

	list := spans[1]
	assert.Equal(t, "execution.reader.list", list.Name())
	assert.Equal(t, codes.Error, list.Status().Code)
}
