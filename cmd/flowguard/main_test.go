package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/persistence/file"
	"github.com/dukex/flowguard/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	command := newCommand()
	command.Writer = &out

	err := command.Run(t.Context(), append([]string{"flowguard", "--log-level", "error"}, args...))

	return out.String(), err
}

func writeTestWorkflow(t *testing.T, name string, workflow *models.Workflow) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, writeWorkflow(path, workflow))

	return path
}

func writeOperations(t *testing.T, ops ...map[string]any) string {
	t.Helper()

	data, err := json.Marshal(ops)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ops.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestReadWriteWorkflow_YAML(t *testing.T) {
	workflow := testutil.CreateTestWorkflowWithNodes()
	path := writeTestWorkflow(t, "workflow.yaml", workflow)

	loaded, err := readWorkflow(path)
	require.NoError(t, err)
	assert.Equal(t, workflow.ID, loaded.ID)
	assert.Len(t, loaded.Nodes, len(workflow.Nodes))
	assert.Len(t, loaded.Connections.All(), len(workflow.Connections.All()))

	_, err = readWorkflow(filepath.Join(t.TempDir(), "workflow.toml"))
	require.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	valid := writeTestWorkflow(t, "valid.json", testutil.CreateTestWorkflowWithNodes())

	broken := testutil.CreateTestWorkflowWithNodes()
	broken.Connections = models.ConnectionMap{}
	broken.Connections.Add(models.Connection{SourceNodeID: "trigger-1", TargetNodeID: "ghost"})
	invalid := writeTestWorkflow(t, "invalid.yml", broken)

	out, err := run(t, "validate", "--profile", "runtime", valid)
	require.NoError(t, err)
	assert.Contains(t, out, valid)
	assert.Contains(t, out, `"valid": true`)

	out, err = run(t, "validate", "--profile", "runtime", valid, invalid)
	require.ErrorIs(t, err, errInvalidWorkflows)
	assert.Contains(t, out, models.CodeDanglingConnection)

	_, err = run(t, "validate", valid)
	require.Error(t, err)

	_, err = run(t, "validate", "--profile", "lenient", valid)
	require.Error(t, err)

	_, err = run(t, "validate", "--profile", "runtime")
	require.ErrorIs(t, err, errMissingArgument)
}

func TestValidateNodeCommand(t *testing.T) {
	out, err := run(t, "validate-node", "--profile", "runtime", "--config", `{"url":"https://example.com"}`, testutil.TypeHTTPRequest)
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)

	out, err = run(t, "validate-node", "--profile", "runtime", testutil.TypeHTTPRequest)
	require.ErrorIs(t, err, errInvalidWorkflows)
	assert.Contains(t, out, models.CodeMissingRequired)
}

func TestPatchCommand(t *testing.T) {
	path := writeTestWorkflow(t, "workflow.json", testutil.CreateTestWorkflowWithNodes())
	output := filepath.Join(t.TempDir(), "patched.json")

	ops := writeOperations(t,
		map[string]any{"type": "addTag", "tag": "reviewed"},
		map[string]any{"type": "updateName", "name": "Status Check"},
	)

	_, err := run(t, "patch", "--output", output, path, ops)
	require.NoError(t, err)

	patched, err := readWorkflow(output)
	require.NoError(t, err)
	assert.Equal(t, "Status Check", patched.Name)
	assert.True(t, patched.HasTag("reviewed"))

	original, err := readWorkflow(path)
	require.NoError(t, err)
	assert.Equal(t, "Test Workflow", original.Name)

	rejected := writeOperations(t,
		map[string]any{"type": "addTag", "tag": "reviewed"},
		map[string]any{"type": "removeNode", "node": "Nope"},
	)

	out, err := run(t, "patch", path, rejected)
	require.ErrorIs(t, err, errPatchRejected)
	assert.Contains(t, out, models.CodePatchRejected)

	original, err = readWorkflow(path)
	require.NoError(t, err)
	assert.False(t, original.HasTag("reviewed"))
}

func TestAutofixCommand(t *testing.T) {
	workflow := testutil.CreateTestWorkflowWithNodes()
	workflow.NodeByID("http-1").TypeVersion = 3
	path := writeTestWorkflow(t, "workflow.json", workflow)

	out, err := run(t, "autofix", "--profile", "runtime", "--threshold", "high", path)
	require.NoError(t, err)
	assert.Contains(t, out, models.FixTypeVersionUpgrade)

	unchanged, err := readWorkflow(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, unchanged.NodeByID("http-1").TypeVersion)

	_, err = run(t, "autofix", "--profile", "runtime", "--threshold", "high", "--apply", path)
	require.NoError(t, err)

	fixed, err := readWorkflow(path)
	require.NoError(t, err)
	assert.Greater(t, fixed.NodeByID("http-1").TypeVersion, 3.0)
}

func TestCatalogCommands(t *testing.T) {
	out, err := run(t, "search-nodes", "--limit", "3", "http request")
	require.NoError(t, err)
	assert.Contains(t, out, testutil.TypeHTTPRequest)

	_, err = run(t, "search-nodes", "--mode", "MAYBE", "http")
	require.Error(t, err)

	out, err = run(t, "search-templates", "--limit", "1")
	require.NoError(t, err)

	var templates []models.TemplateMetadata
	require.NoError(t, json.Unmarshal([]byte(out), &templates))
	require.Len(t, templates, 1)

	out, err = run(t, "template", "--mode", "nodes_only", templates[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, templates[0].Name)
}

func TestExecutionCommand(t *testing.T) {
	dir := t.TempDir()
	store := file.NewPersistence(dir)

	exec := testutil.CreateTestExecution()
	require.NoError(t, store.SaveExecution(t.Context(), exec))

	out, err := run(t, "execution", "--executions-url", "file://"+dir, "--mode", "preview", exec.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "HTTP Request")

	out, err = run(t, "execution", "--executions-url", "file://"+dir)
	require.NoError(t, err)
	assert.Contains(t, out, exec.ID)

	_, err = run(t, "execution", "--executions-url", "file://"+dir, "missing")
	require.Error(t, err)
}
