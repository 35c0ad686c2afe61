// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/flowguard/pkg/models"
	"github.com/google/uuid"
)

// Common node types of the embedded catalog.
const (
	TypeManualTrigger = "n8n-nodes-base.manualTrigger"
	TypeWebhook       = "n8n-nodes-base.webhook"
	TypeHTTPRequest   = "n8n-nodes-base.httpRequest"
	TypeSet           = "n8n-nodes-base.set"
	TypeIf            = "n8n-nodes-base.if"
	TypeSwitch        = "n8n-nodes-base.switch"
	TypeSlack         = "n8n-nodes-base.slack"
	TypeNoOp          = "n8n-nodes-base.noOp"
	TypeAgent         = "@n8n/n8n-nodes-langchain.agent"
	TypeChatOpenAI    = "@n8n/n8n-nodes-langchain.lmChatOpenAi"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:          uuid.New().String(),
		Name:        "No Operation",
		TypeID:      TypeNoOp,
		TypeVersion: 1,
		Position:    models.Position{100, 200},
		Parameters:  map[string]any{},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithTriggerNode configures the node as a manual trigger.
func WithTriggerNode() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = "When clicking Execute"
		n.TypeID = TypeManualTrigger
		n.TypeVersion = 1
		n.Parameters = map[string]any{}
	}
}

// WithHTTPRequest configures the node as an HTTP Request node calling url.
func WithHTTPRequest(url string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = "HTTP Request"
		n.TypeID = TypeHTTPRequest
		n.TypeVersion = 4.2
		n.Parameters = map[string]any{"url": url}
	}
}

// WithIf configures the node as an If node with a single condition.
func WithIf() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = "If"
		n.TypeID = TypeIf
		n.TypeVersion = 2.2
		n.Parameters = map[string]any{
			"conditions": map[string]any{
				"conditions": []any{map[string]any{"leftValue": "={{ $json.ok }}", "operator": "true"}},
			},
		}
	}
}

// WithParameters sets the node parameters.
func WithParameters(params map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Parameters = params
	}
}

// WithParameter sets one node parameter.
func WithParameter(key string, value any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		if n.Parameters == nil {
			n.Parameters = map[string]any{}
		}

		n.Parameters[key] = value
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// WithPosition sets the node position.
func WithPosition(x, y float64) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Position = models.Position{x, y}
	}
}

// WithDisabled marks the node as disabled.
func WithDisabled() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Disabled = true
	}
}

// WithType sets the node type and version.
func WithType(typeID string, version float64) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.TypeID = typeID
		n.TypeVersion = version
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// CreateTestWorkflow creates an empty test workflow that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Nodes:       []*models.WorkflowNode{},
		Connections: models.ConnectionMap{},
		Tags:        []string{"test"},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithNodes appends nodes to the workflow.
func WithNodes(nodes ...*models.WorkflowNode) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = append(w.Nodes, nodes...)
	}
}

// WithConnection adds a main-port connection, optionally tagged with a branch.
func WithConnection(sourceID, targetID string, branch ...string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		c := models.Connection{SourceNodeID: sourceID, TargetNodeID: targetID}
		if len(branch) > 0 {
			c.Branch = branch[0]
		}

		w.Connections.Add(c)
	}
}

// WithPortConnection adds a connection between explicit ports.
func WithPortConnection(c models.Connection) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Connections.Add(c)
	}
}

// CreateTestWorkflowWithNodes creates a trigger -> HTTP Request -> If workflow whose
// If node routes "true" to Success and "false" to Failure.
func CreateTestWorkflowWithNodes() *models.Workflow {
	return CreateTestWorkflow(
		WithNodes(
			CreateTestNode(WithTriggerNode(), WithID("trigger-1"), WithPosition(0, 0)),
			CreateTestNode(WithHTTPRequest("https://api.example.com/status"), WithID("http-1"), WithPosition(200, 0)),
			CreateTestNode(WithIf(), WithID("if-1"), WithPosition(400, 0)),
			CreateTestNode(WithID("ok-1"), WithName("Success"), WithPosition(600, -100)),
			CreateTestNode(WithID("fail-1"), WithName("Failure"), WithPosition(600, 100)),
		),
		WithConnection("trigger-1", "http-1"),
		WithConnection("http-1", "if-1"),
		WithConnection("if-1", "ok-1", "true"),
		WithConnection("if-1", "fail-1", "false"),
	)
}
