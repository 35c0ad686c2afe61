package autofix

import (
	"context"
	"testing"

	"github.com/dukex/flowguard/pkg/catalog"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/testutil"
	"github.com/dukex/flowguard/pkg/validation"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()

	idx, err := catalog.Default()
	require.NoError(t, err)

	return NewEngine(idx, nil)
}

func fix(t *testing.T, wf *models.Workflow, opts Options) *Result {
	t.Helper()

	if opts.Profile == "" {
		opts.Profile = validation.ProfileMinimal
	}

	result, err := newEngine(t).Fix(context.Background(), wf, opts)
	require.NoError(t, err)

	return result
}

func fixTypes(fixes []Fix) []FixType {
	types := make([]FixType, len(fixes))
	for i, f := range fixes {
		types[i] = f.Type
	}

	return types
}

// gatedWorkflow has an outdated HTTP Request node and an If connection without a branch while both
// branches are unused.
func gatedWorkflow() *models.Workflow {
	return testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithTriggerNode(), testutil.WithID("trigger-1")),
			testutil.CreateTestNode(testutil.WithHTTPRequest("https://example.com"), testutil.WithID("http-1"),
				testutil.WithType(testutil.TypeHTTPRequest, 3)),
			testutil.CreateTestNode(testutil.WithIf(), testutil.WithID("if-1")),
			testutil.CreateTestNode(testutil.WithID("ok-1"), testutil.WithName("Success")),
		),
		testutil.WithConnection("trigger-1", "http-1"),
		testutil.WithConnection("http-1", "if-1"),
		testutil.WithConnection("if-1", "ok-1"),
	)
}

func TestParseConfidence(t *testing.T) {
	for _, c := range []string{"high", "medium", "low"} {
		parsed, err := ParseConfidence(c)
		require.NoError(t, err)
		assert.Equal(t, Confidence(c), parsed)
	}

	_, err := ParseConfidence("")
	assert.ErrorIs(t, err, ErrInvalidConfidence)

	_, err = ParseConfidence("certain")
	assert.ErrorIs(t, err, ErrInvalidConfidence)

	assert.True(t, ConfidenceHigh.AtLeast(ConfidenceMedium))
	assert.False(t, ConfidenceLow.AtLeast(ConfidenceMedium))
}

func TestFix_ConfidenceGating(t *testing.T) {
	wf := gatedWorkflow()
	before := wf.Clone()

	result := fix(t, wf, Options{ConfidenceThreshold: ConfidenceHigh})

	assert.Empty(t, cmp.Diff(before, wf), "caller workflow must not change")

	require.Len(t, result.Applied, 1)
	assert.Equal(t, FixTypeVersionUpgrade, result.Applied[0].Type)
	assert.Equal(t, ConfidenceHigh, result.Applied[0].Confidence)

	require.Len(t, result.Proposed, 1)
	assert.Equal(t, FixBranchInference, result.Proposed[0].Type)
	assert.Equal(t, ConfidenceLow, result.Proposed[0].Confidence)
	assert.Empty(t, result.Failed)

	assert.Equal(t, 4.2, result.Workflow.NodeByID("http-1").TypeVersion)
	assert.Len(t, result.Report.ByCode(models.CodeMissingBranch), 1)
	assert.Empty(t, result.Report.ByCode(models.CodeOutdatedTypeVersion))
	assert.True(t, result.Committable())
}

func TestFix_LowThresholdAppliesEverything(t *testing.T) {
	result := fix(t, gatedWorkflow(), Options{ConfidenceThreshold: ConfidenceLow})

	assert.Equal(t, []FixType{FixTypeVersionUpgrade, FixBranchInference}, fixTypes(result.Applied))
	assert.Empty(t, result.Proposed)
	assert.True(t, result.Workflow.Connections.Has(models.Connection{SourceNodeID: "if-1", TargetNodeID: "ok-1", Branch: "true"}))
	assert.False(t, result.Workflow.Connections.Has(models.Connection{SourceNodeID: "if-1", TargetNodeID: "ok-1"}))
	assert.Empty(t, result.Report.ByCode(models.CodeMissingBranch))
}

func TestFix_BranchInference(t *testing.T) {
	testCases := []struct {
		name       string
		connect    []func(*models.Workflow)
		confidence Confidence
		expected   models.Connection
		removed    models.Connection
	}{
		{
			name: "case only mismatch",
			connect: []func(*models.Workflow){
				testutil.WithConnection("if-1", "ok-1", "True"),
				testutil.WithConnection("if-1", "fail-1", "false"),
			},
			confidence: ConfidenceHigh,
			expected:   models.Connection{SourceNodeID: "if-1", TargetNodeID: "ok-1", Branch: "true"},
			removed:    models.Connection{SourceNodeID: "if-1", TargetNodeID: "ok-1", Branch: "True"},
		},
		{
			name: "one unused branch left",
			connect: []func(*models.Workflow){
				testutil.WithConnection("if-1", "ok-1", "true"),
				testutil.WithConnection("if-1", "fail-1"),
			},
			confidence: ConfidenceMedium,
			expected:   models.Connection{SourceNodeID: "if-1", TargetNodeID: "fail-1", Branch: "false"},
			removed:    models.Connection{SourceNodeID: "if-1", TargetNodeID: "fail-1"},
		},
		{
			name: "branch on non-branching source",
			connect: []func(*models.Workflow){
				testutil.WithConnection("if-1", "ok-1", "true"),
				testutil.WithConnection("if-1", "fail-1", "false"),
				testutil.WithConnection("ok-1", "fail-1", "done"),
			},
			confidence: ConfidenceHigh,
			expected:   models.Connection{SourceNodeID: "ok-1", TargetNodeID: "fail-1"},
			removed:    models.Connection{SourceNodeID: "ok-1", TargetNodeID: "fail-1", Branch: "done"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			overrides := []func(*models.Workflow){
				testutil.WithNodes(
					testutil.CreateTestNode(testutil.WithTriggerNode(), testutil.WithID("trigger-1")),
					testutil.CreateTestNode(testutil.WithIf(), testutil.WithID("if-1")),
					testutil.CreateTestNode(testutil.WithID("ok-1"), testutil.WithName("Success")),
					testutil.CreateTestNode(testutil.WithID("fail-1"), testutil.WithName("Failure")),
				),
				testutil.WithConnection("trigger-1", "if-1"),
			}
			wf := testutil.CreateTestWorkflow(append(overrides, tc.connect...)...)

			result := fix(t, wf, Options{ConfidenceThreshold: tc.confidence})

			require.Len(t, result.Applied, 1)
			assert.Equal(t, FixBranchInference, result.Applied[0].Type)
			assert.Equal(t, tc.confidence, result.Applied[0].Confidence)
			assert.True(t, result.Workflow.Connections.Has(tc.expected))
			assert.False(t, result.Workflow.Connections.Has(tc.removed))
		})
	}
}

func TestFix_BranchInferenceClaimsDistinctBranches(t *testing.T) {
	wf := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithTriggerNode(), testutil.WithID("trigger-1")),
			testutil.CreateTestNode(testutil.WithIf(), testutil.WithID("if-1")),
			testutil.CreateTestNode(testutil.WithID("ok-1"), testutil.WithName("Success")),
			testutil.CreateTestNode(testutil.WithID("fail-1"), testutil.WithName("Failure")),
		),
		testutil.WithConnection("trigger-1", "if-1"),
		testutil.WithConnection("if-1", "ok-1"),
		testutil.WithConnection("if-1", "fail-1"),
	)

	result := fix(t, wf, Options{ConfidenceThreshold: ConfidenceLow})

	require.Len(t, result.Applied, 2)
	assert.True(t, result.Workflow.Connections.Has(models.Connection{SourceNodeID: "if-1", TargetNodeID: "ok-1", Branch: "true"}))
	assert.True(t, result.Workflow.Connections.Has(models.Connection{SourceNodeID: "if-1", TargetNodeID: "fail-1", Branch: "false"}))
}

func TestFix_BranchInferenceAmbiguousSiblingsStayLow(t *testing.T) {
	wf := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithTriggerNode(), testutil.WithID("trigger-1")),
			testutil.CreateTestNode(testutil.WithIf(), testutil.WithID("if-1")),
			testutil.CreateTestNode(testutil.WithID("a-1"), testutil.WithName("A")),
			testutil.CreateTestNode(testutil.WithID("b-1"), testutil.WithName("B")),
		),
		testutil.WithConnection("trigger-1", "if-1"),
		testutil.WithConnection("if-1", "a-1"),
		testutil.WithConnection("if-1", "b-1"),
	)

	result := fix(t, wf, Options{ConfidenceThreshold: ConfidenceMedium, FixTypes: []FixType{FixBranchInference}})

	assert.Empty(t, result.Applied)
	require.Len(t, result.Proposed, 2)

	for _, proposed := range result.Proposed {
		assert.Equal(t, ConfidenceLow, proposed.Confidence, proposed.Description)
	}

	assert.False(t, result.Committable())
	assert.Len(t, result.Report.ByCode(models.CodeMissingBranch), 2)
}

func TestFix_ExpressionFormat(t *testing.T) {
	wf := testutil.CreateTestWorkflowWithNodes()
	wf.NodeByID("http-1").Parameters["url"] = "https://api.example.com/{{ $json.id }}"
	wf.NodeByID("if-1").Parameters["conditions"].(map[string]any)["conditions"].([]any)[0].(map[string]any)["leftValue"] = "{{ $json.ok }}"

	result := fix(t, wf, Options{ConfidenceThreshold: ConfidenceHigh, FixTypes: []FixType{FixExpressionFormat}})

	require.Len(t, result.Applied, 2)
	assert.Equal(t, "=https://api.example.com/{{ $json.id }}", result.Workflow.NodeByID("http-1").Parameters["url"])

	conditions := result.Workflow.NodeByID("if-1").Parameters["conditions"].(map[string]any)["conditions"].([]any)
	assert.Equal(t, "={{ $json.ok }}", conditions[0].(map[string]any)["leftValue"])
	assert.Empty(t, result.Report.ByCode(models.CodeExpressionNoPrefix))
}

func TestFix_StaleConnectionAndMaxFixes(t *testing.T) {
	wf := testutil.CreateTestWorkflowWithNodes()
	wf.Connections.Add(models.Connection{SourceNodeID: "ok-1", TargetNodeID: "ghost-1"})
	wf.Connections.Add(models.Connection{SourceNodeID: "ghost-2", TargetNodeID: "fail-1"})

	capped := fix(t, wf, Options{ConfidenceThreshold: ConfidenceHigh, MaxFixes: 1})

	require.Len(t, capped.Applied, 1)
	require.Len(t, capped.Proposed, 1)
	assert.Equal(t, FixStaleConnection, capped.Applied[0].Type)
	assert.Len(t, capped.Report.ByCode(models.CodeDanglingConnection), 1)

	all := fix(t, wf, Options{ConfidenceThreshold: ConfidenceHigh})

	require.Len(t, all.Applied, 2)
	assert.Empty(t, all.Report.ByCode(models.CodeDanglingConnection))
	assert.Equal(t, 4, all.Workflow.Connections.Len())
}

func TestFix_MaxFixesCountsOperations(t *testing.T) {
	testCases := []struct {
		name     string
		maxFixes int
		applied  []FixType
		proposed []FixType
	}{
		{name: "retag does not fit", maxFixes: 1, applied: []FixType{FixTypeVersionUpgrade}, proposed: []FixType{FixBranchInference}},
		{name: "retag needs two operations", maxFixes: 2, applied: []FixType{FixTypeVersionUpgrade}, proposed: []FixType{FixBranchInference}},
		{name: "budget covers both", maxFixes: 3, applied: []FixType{FixTypeVersionUpgrade, FixBranchInference}, proposed: []FixType{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := fix(t, gatedWorkflow(), Options{ConfidenceThreshold: ConfidenceLow, MaxFixes: tc.maxFixes})

			assert.Equal(t, tc.applied, fixTypes(result.Applied))
			assert.Equal(t, tc.proposed, fixTypes(result.Proposed))
		})
	}
}

func TestFix_NodeTypeCorrection(t *testing.T) {
	wf := testutil.CreateTestWorkflowWithNodes()
	wf.Nodes = append(wf.Nodes, testutil.CreateTestNode(
		testutil.WithID("notify-1"),
		testutil.WithName("Notify"),
		testutil.WithType("n8n-nodes-base.slak", 1),
	))
	wf.Connections.Add(models.Connection{SourceNodeID: "ok-1", TargetNodeID: "notify-1"})

	high := fix(t, wf, Options{ConfidenceThreshold: ConfidenceHigh})
	assert.Empty(t, high.Applied)
	require.Len(t, high.Proposed, 1)
	assert.Equal(t, ConfidenceMedium, high.Proposed[0].Confidence)

	medium := fix(t, wf, Options{ConfidenceThreshold: ConfidenceMedium})
	require.Len(t, medium.Applied, 1)

	notify := medium.Workflow.NodeByID("notify-1")
	assert.Equal(t, testutil.TypeSlack, notify.TypeID)
	assert.Equal(t, 2.2, notify.TypeVersion)
	assert.Empty(t, medium.Report.ByCode(models.CodeUnknownNodeType))
}

func TestFix_VersionBelowMinimumIsMedium(t *testing.T) {
	wf := testutil.CreateTestWorkflowWithNodes()
	wf.NodeByID("http-1").TypeVersion = 0.5

	fixes, err := newEngine(t).Propose(context.Background(), wf, validation.ProfileMinimal)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.Equal(t, FixTypeVersionUpgrade, fixes[0].Type)
	assert.Equal(t, ConfidenceMedium, fixes[0].Confidence)
}

func TestFix_DryRun(t *testing.T) {
	wf := gatedWorkflow()
	before := wf.Clone()

	result := fix(t, wf, Options{ConfidenceThreshold: ConfidenceLow, DryRun: true})

	assert.True(t, result.DryRun)
	assert.False(t, result.Committable())
	assert.Len(t, result.Applied, 2)
	assert.Equal(t, 4.2, result.Workflow.NodeByID("http-1").TypeVersion)
	assert.Empty(t, cmp.Diff(before, wf))
}

func TestFix_NothingToFix(t *testing.T) {
	result := fix(t, testutil.CreateTestWorkflowWithNodes(), Options{ConfidenceThreshold: ConfidenceLow})

	assert.Empty(t, result.Applied)
	assert.Empty(t, result.Proposed)
	assert.False(t, result.Committable())
	assert.True(t, result.Report.Valid())
}

func TestFix_Errors(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()
	wf := testutil.CreateTestWorkflowWithNodes()

	_, err := engine.Fix(ctx, nil, Options{Profile: validation.ProfileMinimal, ConfidenceThreshold: ConfidenceHigh})
	assert.ErrorIs(t, err, ErrNilWorkflow)

	_, err = engine.Fix(ctx, wf, Options{Profile: validation.ProfileMinimal})
	assert.ErrorIs(t, err, ErrInvalidConfidence)

	_, err = engine.Fix(ctx, wf, Options{ConfidenceThreshold: ConfidenceHigh})
	assert.ErrorIs(t, err, validation.ErrInvalidProfile)

	_, err = engine.Fix(ctx, wf, Options{
		Profile:             validation.ProfileMinimal,
		ConfidenceThreshold: ConfidenceHigh,
		FixTypes:            []FixType{"rewrite-everything"},
	})
	assert.ErrorIs(t, err, ErrUnknownFixType)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	_, err = engine.Fix(cancelled, wf, Options{Profile: validation.ProfileMinimal, ConfidenceThreshold: ConfidenceHigh})
	assert.ErrorIs(t, err, context.Canceled)
}
