package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	requiredTag = "required"
)

func TestWorkflowNode_Validation_MissingFields(t *testing.T) {
	testCases := []struct {
		name      string
		node      *WorkflowNode
		fieldName string
	}{
		{
			name:      "missing id",
			node:      &WorkflowNode{Name: "Webhook", TypeID: "n8n-nodes-base.webhook"},
			fieldName: "ID",
		},
		{
			name:      "missing name",
			node:      &WorkflowNode{ID: "n1", TypeID: "n8n-nodes-base.webhook"},
			fieldName: "Name",
		},
		{
			name:      "missing type",
			node:      &WorkflowNode{ID: "n1", Name: "Webhook"},
			fieldName: "TypeID",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			validate := validator.New()
			err := validate.Struct(tc.node)
			require.Error(t, err)

			var validationErrors validator.ValidationErrors
			require.True(t, errors.As(err, &validationErrors))

			found := false

			for _, fieldErr := range validationErrors {
				if fieldErr.Field() == tc.fieldName && fieldErr.Tag() == requiredTag {
					found = true

					break
				}
			}

			assert.True(t, found, "Should have validation error for required %s field", tc.fieldName)
		})
	}
}

func TestWorkflowNode_JSONDisabledDefault(t *testing.T) {
	var node WorkflowNode

	err := json.Unmarshal([]byte(`{"id":"n1","name":"Set","type_id":"n8n-nodes-base.set","type_version":3}`), &node)
	require.NoError(t, err)

	assert.True(t, node.IsEnabled())
	assert.InDelta(t, 3.0, node.TypeVersion, 0)

	node.Disabled = true
	data, err := json.Marshal(node)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"disabled":true`)
}

func TestWorkflow_Clone_IsDeep(t *testing.T) {
	original := &Workflow{
		ID:   "wf-1",
		Name: "Clone me",
		Nodes: []*WorkflowNode{
			{ID: "a", Name: "A", TypeID: "t", Parameters: map[string]any{
				"nested": map[string]any{"list": []any{"x", map[string]any{"k": "v"}}},
			}},
		},
		Settings: map[string]any{"executionOrder": "v1"},
		Tags:     []string{"prod"},
	}
	original.Connections.Add(Connection{SourceNodeID: "a", TargetNodeID: "b"})

	clone := original.Clone()
	require.Equal(t, original, clone)

	clone.Nodes[0].Parameters["nested"].(map[string]any)["list"].([]any)[1].(map[string]any)["k"] = "changed"
	clone.Settings["executionOrder"] = "v0"
	clone.Tags[0] = "dev"
	clone.Connections.Add(Connection{SourceNodeID: "a", TargetNodeID: "c"})

	assert.Equal(t, "v", original.Nodes[0].Parameters["nested"].(map[string]any)["list"].([]any)[1].(map[string]any)["k"])
	assert.Equal(t, "v1", original.Settings["executionOrder"])
	assert.Equal(t, "prod", original.Tags[0])
	assert.Equal(t, 1, original.Connections.Len())
}

func TestWorkflow_ResolveNode(t *testing.T) {
	workflow := &Workflow{Nodes: []*WorkflowNode{
		{ID: "n1", Name: "HTTP Request"},
		{ID: "n2", Name: "n1"},
	}}

	assert.Equal(t, "n1", workflow.ResolveNode("n1").ID, "id wins over name")
	assert.Equal(t, "n1", workflow.ResolveNode("HTTP Request").ID)
	assert.Nil(t, workflow.ResolveNode("missing"))
}

func TestValidationReport_SortKeepsInsertionOrder(t *testing.T) {
	report := NewValidationReport()
	report.Add(Finding{Severity: SeverityInfo, Code: "i1"})
	report.Add(Finding{Severity: SeverityWarning, Code: "w1"})
	report.Add(Finding{Severity: SeverityError, Code: "e1"})
	report.Add(Finding{Severity: SeverityWarning, Code: "w2"})
	report.Add(Finding{Severity: SeverityError, Code: "e2"})

	report.Sort()

	codes := make([]string, 0, len(report.Findings))
	for _, f := range report.Findings {
		codes = append(codes, f.Code)
	}

	assert.Equal(t, []string{"e1", "e2", "w1", "w2", "i1"}, codes)
	assert.False(t, report.Valid())
	assert.Equal(t, ReportSummary{Valid: false, Errors: 2, Warnings: 2, Infos: 1}, report.Summary())
}

func TestJSONSchema_Kinds(t *testing.T) {
	schema := JSONSchema([]PropertyDefinition{
		{Name: "url", Kind: PropertyKindString},
		{Name: "method", Kind: PropertyKindOptions, Options: []any{"GET", "POST"}},
		{Name: "body", Kind: PropertyKindJSON},
	})

	props := schema["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string"}, props["url"])
	assert.Equal(t, map[string]any{"enum": []any{"GET", "POST"}}, props["method"])
	assert.Equal(t, map[string]any{}, props["body"])
}
