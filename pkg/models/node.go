// Package models defines core node models for workflow graphs.
package models

// CategoryType represents the category of a node definition.
type CategoryType string

const (
	CategoryTypeTrigger   CategoryType = "trigger"   // Starts executions without an inbound connection
	CategoryTypeTransform CategoryType = "transform" // Reshapes items (set, code, if, switch, merge)
	CategoryTypeInput     CategoryType = "input"     // Reads from an external service
	CategoryTypeOutput    CategoryType = "output"    // Writes to an external service
	CategoryTypeAITool    CategoryType = "ai-tool"   // Usable as a tool or sub-node of an AI agent
)

// Categories lists every known node category.
var Categories = []CategoryType{
	CategoryTypeTrigger,
	CategoryTypeTransform,
	CategoryTypeInput,
	CategoryTypeOutput,
	CategoryTypeAITool,
}

// Position is a display-only 2D coordinate in the editor canvas.
type Position [2]float64

// WorkflowNode represents a node instance in a workflow.
type WorkflowNode struct {
	ID          string         `json:"id"           validate:"required"`
	Name        string         `json:"name"         validate:"required"`
	TypeID      string         `json:"type_id"      validate:"required"`
	TypeVersion float64        `json:"type_version" validate:"gte=0"`
	Position    Position       `json:"position"`
	Parameters  map[string]any `json:"parameters"`
	Disabled    bool           `json:"disabled,omitempty"`
}

// IsEnabled reports whether the node takes part in executions.
func (n *WorkflowNode) IsEnabled() bool {
	return !n.Disabled
}

// Clone returns a deep copy of the node.
func (n *WorkflowNode) Clone() *WorkflowNode {
	if n == nil {
		return nil
	}

	clone := *n
	clone.Parameters = CloneMap(n.Parameters)

	return &clone
}
