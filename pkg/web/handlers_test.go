package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/flowguard/pkg/catalog"
	"github.com/dukex/flowguard/pkg/execution"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/patch"
	"github.com/dukex/flowguard/pkg/persistence/file"
	"github.com/dukex/flowguard/pkg/services"
	"github.com/dukex/flowguard/pkg/testutil"
	"github.com/dukex/flowguard/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	idx, err := catalog.Default()
	require.NoError(t, err)

	store := file.NewPersistence(t.TempDir())
	workflowService := services.NewWorkflow(store, idx)
	reader := execution.NewReader(store, slog.Default())

	handlers := web.NewAPIHandlers(workflowService, idx, reader, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)

	return app, store
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func seedWorkflow(t *testing.T, store *file.Persistence) *models.Workflow {
	t.Helper()

	wf := testutil.CreateTestWorkflowWithNodes()
	require.NoError(t, store.SaveWorkflow(t.Context(), wf))

	return wf
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "successful creation",
			requestBody:    web.WorkflowRequest{Name: "Test Workflow", Tags: []string{"ops"}},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "validation error - missing name",
			requestBody:    web.WorkflowRequest{Tags: []string{"ops"}},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Name",
		},
		{
			name: "validation error - node without type",
			requestBody: web.WorkflowRequest{
				Name:  "Test Workflow",
				Nodes: []*models.WorkflowNode{{ID: "n-1", Name: "Node"}},
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "TypeID",
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid JSON format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			status, body := doJSON(t, app, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status)

			if tt.expectedError != "" {
				assert.Contains(t, string(body), tt.expectedError)

				return
			}

			var workflow models.Workflow
			require.NoError(t, json.Unmarshal(body, &workflow))
			assert.NotEmpty(t, workflow.ID)
			assert.Equal(t, "Test Workflow", workflow.Name)
		})
	}
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	app, store := setupTestApp(t)
	wf := seedWorkflow(t, store)

	status, _ := doJSON(t, app, http.MethodGet, "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := doJSON(t, app, http.MethodGet, "/workflows?limit=10&sort_by=name", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"total_count":1`)

	status, _ = doJSON(t, app, http.MethodGet, "/workflows?sort_by=owner", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doJSON(t, app, http.MethodPut, "/workflows/"+wf.ID, web.WorkflowRequest{Name: "Renamed"})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"name":"Renamed"`)

	status, _ = doJSON(t, app, http.MethodDelete, "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = doJSON(t, app, http.MethodGet, "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "workflow_not_found")
}

func TestAPIHandlers_ValidateWorkflow(t *testing.T) {
	app, store := setupTestApp(t)
	wf := seedWorkflow(t, store)

	status, body := doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/validate", web.ValidationRequest{Profile: "runtime"})
	require.Equal(t, http.StatusOK, status, string(body))

	var response web.ValidationResponse
	require.NoError(t, json.Unmarshal(body, &response))
	assert.True(t, response.Summary.Valid)

	status, body = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/validate", web.ValidationRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "Profile")

	status, _ = doJSON(t, app, http.MethodPost, "/workflows/missing/validate", web.ValidationRequest{Profile: "runtime"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ValidateDocument(t *testing.T) {
	app, _ := setupTestApp(t)

	wf := testutil.CreateTestWorkflowWithNodes()
	wf.Connections.Add(models.Connection{SourceNodeID: "if-1", TargetNodeID: "ok-1"})

	status, body := doJSON(t, app, http.MethodPost, "/validate", map[string]any{
		"profile":  "minimal",
		"workflow": wf,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var response web.ValidationResponse
	require.NoError(t, json.Unmarshal(body, &response))
	assert.False(t, response.Summary.Valid)
	assert.Len(t, response.Report.ByCode(models.CodeMissingBranch), 1)
}

func TestAPIHandlers_PatchWorkflow(t *testing.T) {
	app, store := setupTestApp(t)
	wf := seedWorkflow(t, store)

	status, body := doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/patch", map[string]any{
		"operations": []map[string]any{
			{"type": "updateNode", "node": "HTTP Request", "updates": map[string]any{"parameters.url": "https://example.org"}},
		},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var result patch.Result
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Len(t, result.Applied, 1)
	assert.Nil(t, result.Rejected)

	stored, err := store.WorkflowByID(t.Context(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", stored.NodeByID("http-1").Parameters["url"])

	status, body = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/patch", map[string]any{
		"operations": []map[string]any{{"type": "renameWorkflow"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "unknown operation type")
}

func TestAPIHandlers_Autofix(t *testing.T) {
	app, store := setupTestApp(t)

	wf := testutil.CreateTestWorkflowWithNodes()
	wf.NodeByID("http-1").TypeVersion = 3
	require.NoError(t, store.SaveWorkflow(t.Context(), wf))

	status, body := doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/autofix", web.AutofixRequest{Profile: "runtime"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "ConfidenceThreshold")

	status, body = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/autofix", web.AutofixRequest{
		Profile:             "runtime",
		ConfidenceThreshold: "high",
		DryRun:              true,
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"dry_run":true`)
	assert.Contains(t, string(body), "typeversion-upgrade")

	stored, err := store.WorkflowByID(t.Context(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, stored.NodeByID("http-1").TypeVersion)
}

func TestAPIHandlers_Nodes(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := doJSON(t, app, http.MethodGet, "/nodes?query=http&limit=5", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), testutil.TypeHTTPRequest)

	status, _ = doJSON(t, app, http.MethodGet, "/nodes?query=http&mode=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doJSON(t, app, http.MethodGet, "/nodes?category=trigger", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), testutil.TypeManualTrigger)

	status, body = doJSON(t, app, http.MethodGet, "/nodes/"+testutil.TypeAgent, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), testutil.TypeAgent)

	status, body = doJSON(t, app, http.MethodGet, "/nodes/n8n-nodes-base.slak", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), testutil.TypeSlack)

	status, body = doJSON(t, app, http.MethodPost, "/nodes/validate", web.ValidateNodeRequest{
		TypeID:  testutil.TypeHTTPRequest,
		Config:  map[string]any{},
		Profile: "runtime",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), models.CodeMissingRequired)
}

func TestAPIHandlers_Templates(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := doJSON(t, app, http.MethodGet, "/templates?limit=2", nil)
	require.Equal(t, http.StatusOK, status)

	var listed struct {
		Templates []*models.TemplateMetadata `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(body, &listed))
	require.NotEmpty(t, listed.Templates)

	status, _ = doJSON(t, app, http.MethodGet, "/templates/"+listed.Templates[0].ID+"?mode=nodes_only", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, app, http.MethodGet, "/templates/"+listed.Templates[0].ID+"?mode=everything", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, app, http.MethodGet, "/templates/no-such-template", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, app, http.MethodGet, "/templates/by-metadata?max_setup_minutes=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_Executions(t *testing.T) {
	app, store := setupTestApp(t)

	require.NoError(t, store.SaveExecution(t.Context(), testutil.CreateTestExecution()))

	status, body := doJSON(t, app, http.MethodGet, "/executions/exec-1?mode=filtered&nodes=HTTP%20Request&items_limit=1", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var view execution.View
	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Nodes, 1)
	assert.Equal(t, 3, view.Nodes[0].ItemCount)
	assert.Len(t, view.Nodes[0].Items, 1)

	status, _ = doJSON(t, app, http.MethodGet, "/executions/exec-1?mode=raw", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doJSON(t, app, http.MethodGet, "/executions/exec-404", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "execution_not_found")

	status, body = doJSON(t, app, http.MethodGet, "/executions?workflow_id="+testutil.TestWorkflowID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"count":1`)
}
