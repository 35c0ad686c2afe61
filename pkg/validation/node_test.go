package validation

import (
	"testing"

	"github.com/dukex/flowguard/pkg/catalog"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultCatalog(t *testing.T) *catalog.Index {
	t.Helper()

	idx, err := catalog.Default()
	require.NoError(t, err)

	return idx
}

func codes(findings []models.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Code)
	}

	return out
}

func TestParseProfile(t *testing.T) {
	for _, p := range Profiles {
		got, err := ParseProfile(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParseProfile("")
	require.ErrorIs(t, err, ErrInvalidProfile)

	_, err = ParseProfile("lenient")
	require.ErrorIs(t, err, ErrInvalidProfile)
}

func TestValidateNode_Profiles(t *testing.T) {
	v := NewNodeValidator(defaultCatalog(t))

	tests := []struct {
		name     string
		typeID   string
		config   map[string]any
		profile  Profile
		errors   []string
		warnings []string
	}{
		{
			name:    "minimal reports missing required property",
			typeID:  testutil.TypeHTTPRequest,
			config:  map[string]any{},
			profile: ProfileMinimal,
			errors:  []string{models.CodeMissingRequired},
		},
		{
			name:    "minimal ignores execution-read properties",
			typeID:  "n8n-nodes-base.gmail",
			config:  map[string]any{},
			profile: ProfileMinimal,
		},
		{
			name:    "runtime requires execution-read properties",
			typeID:  "n8n-nodes-base.gmail",
			config:  map[string]any{},
			profile: ProfileRuntime,
			errors:  []string{models.CodeMissingRequired, models.CodeMissingRequired, models.CodeMissingRequired},
		},
		{
			name:    "blank string counts as missing",
			typeID:  testutil.TypeHTTPRequest,
			config:  map[string]any{"url": "   "},
			profile: ProfileMinimal,
			errors:  []string{models.CodeMissingRequired},
		},
		{
			name:    "runtime type mismatch is an error",
			typeID:  testutil.TypeHTTPRequest,
			config:  map[string]any{"url": 42},
			profile: ProfileRuntime,
			errors:  []string{models.CodeInvalidType},
		},
		{
			name:     "ai-friendly type mismatch is a warning",
			typeID:   testutil.TypeHTTPRequest,
			config:   map[string]any{"url": 42},
			profile:  ProfileAIFriendly,
			warnings: []string{models.CodeInvalidType},
		},
		{
			name:    "minimal skips type checks",
			typeID:  testutil.TypeHTTPRequest,
			config:  map[string]any{"url": 42},
			profile: ProfileMinimal,
		},
		{
			name:    "option outside the allowed values",
			typeID:  testutil.TypeHTTPRequest,
			config:  map[string]any{"url": "https://example.com", "method": "FETCH"},
			profile: ProfileRuntime,
			errors:  []string{models.CodeInvalidValue},
		},
		{
			name:    "expression values skip type checks",
			typeID:  testutil.TypeHTTPRequest,
			config:  map[string]any{"url": "={{ $json.url }}"},
			profile: ProfileStrict,
		},
		{
			name:     "strict flags undeclared parameters",
			typeID:   testutil.TypeHTTPRequest,
			config:   map[string]any{"url": "https://example.com", "retries": 3},
			profile:  ProfileStrict,
			warnings: []string{models.CodeUnknownProperty},
		},
		{
			name:    "strict parses cron expressions",
			typeID:  "n8n-nodes-base.scheduleTrigger",
			config:  map[string]any{"rule": map[string]any{}, "cronExpression": "every monday"},
			profile: ProfileStrict,
			errors:  []string{models.CodeInvalidValue},
		},
		{
			name:    "valid cron expression",
			typeID:  "n8n-nodes-base.scheduleTrigger",
			config:  map[string]any{"rule": map[string]any{}, "cronExpression": "0 9 * * 1"},
			profile: ProfileStrict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := v.ValidateNode(tt.typeID, tt.config, tt.profile)
			require.NoError(t, err)

			assert.ElementsMatch(t, tt.errors, codes(report.Errors()))
			assert.ElementsMatch(t, tt.warnings, codes(report.Warnings()))
		})
	}
}

func TestValidateNode_StrictReportsMissingOptionalAsInfo(t *testing.T) {
	v := NewNodeValidator(defaultCatalog(t))

	report, err := v.ValidateNode(testutil.TypeHTTPRequest, map[string]any{"url": "https://example.com"}, ProfileStrict)
	require.NoError(t, err)

	assert.True(t, report.Valid())
	assert.NotZero(t, report.Count(models.SeverityInfo))

	for _, f := range report.ByCode(models.CodeMissingOptional) {
		assert.Equal(t, models.SeverityInfo, f.Severity)
		assert.NotEmpty(t, f.Field)
	}
}

func TestValidateNode_UnknownTypeSuggestsCorrection(t *testing.T) {
	v := NewNodeValidator(defaultCatalog(t))

	for _, profile := range Profiles {
		report, err := v.ValidateNode("n8n-nodes-base.httpRequst", nil, profile)
		require.NoError(t, err)
		require.Len(t, report.Findings, 1)

		f := report.Findings[0]
		assert.Equal(t, models.SeverityError, f.Severity)
		assert.Equal(t, models.CodeUnknownNodeType, f.Code)
		assert.Equal(t, models.FixNodeTypeCorrection, f.FixRef)
		assert.Contains(t, f.Message, testutil.TypeHTTPRequest)
	}
}

func TestValidateNode_InvalidProfile(t *testing.T) {
	v := NewNodeValidator(defaultCatalog(t))

	_, err := v.ValidateNode(testutil.TypeHTTPRequest, nil, "")
	require.ErrorIs(t, err, ErrInvalidProfile)
}

func TestValidateNode_Deterministic(t *testing.T) {
	v := NewNodeValidator(defaultCatalog(t))
	config := map[string]any{"url": 1, "method": "FETCH", "sendBody": "yes", "extra": true}

	first, err := v.ValidateNode(testutil.TypeHTTPRequest, config, ProfileStrict)
	require.NoError(t, err)

	second, err := v.ValidateNode(testutil.TypeHTTPRequest, config, ProfileStrict)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestValidateWorkflowNode_TypeVersion(t *testing.T) {
	v := NewNodeValidator(defaultCatalog(t))

	tests := []struct {
		name     string
		version  float64
		severity models.Severity
		code     string
		fixRef   string
	}{
		{name: "newer than known", version: 5, severity: models.SeverityError, code: models.CodeUnsupportedVersion},
		{name: "outdated", version: 3, severity: models.SeverityWarning, code: models.CodeOutdatedTypeVersion, fixRef: models.FixTypeVersionUpgrade},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := testutil.CreateTestNode(testutil.WithHTTPRequest("https://example.com"), testutil.WithType(testutil.TypeHTTPRequest, tt.version))

			report, err := v.ValidateWorkflowNode(node, ProfileRuntime)
			require.NoError(t, err)
			require.Len(t, report.Findings, 1)

			f := report.Findings[0]
			assert.Equal(t, tt.severity, f.Severity)
			assert.Equal(t, tt.code, f.Code)
			assert.Equal(t, tt.fixRef, f.FixRef)
			assert.Equal(t, node.ID, f.Target.NodeID)
		})
	}

	current := testutil.CreateTestNode(testutil.WithHTTPRequest("https://example.com"))

	report, err := v.ValidateWorkflowNode(current, ProfileRuntime)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}
