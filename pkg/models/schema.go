package models

import "slices"

// PropertyKind is the declared value type of a node property.
type PropertyKind string

const (
	PropertyKindString     PropertyKind = "string"
	PropertyKindNumber     PropertyKind = "number"
	PropertyKindBoolean    PropertyKind = "boolean"
	PropertyKindOptions    PropertyKind = "options"    // One of Options
	PropertyKindCollection PropertyKind = "collection" // Nested object
	PropertyKindList       PropertyKind = "list"       // Array of values
	PropertyKindJSON       PropertyKind = "json"       // Free-form JSON value
	PropertyKindCron       PropertyKind = "cron"       // Cron expression string
)

// PropertyDefinition describes one configurable parameter of a node type.
type PropertyDefinition struct {
	Name          string       `json:"name"`
	Kind          PropertyKind `json:"kind"`
	Description   string       `json:"description,omitempty"`
	Required      bool         `json:"required,omitempty"`
	Default       any          `json:"default,omitempty"`
	Options       []any        `json:"options,omitempty"`
	ExecutionRead bool         `json:"execution_read,omitempty"` // Read by the node's execution path
}

// HasDefault reports whether the property declares a default value.
func (p PropertyDefinition) HasDefault() bool {
	return p.Default != nil
}

// NodeDefinition is a static catalog entry describing a node type.
type NodeDefinition struct {
	TypeID      string               `json:"type_id"`
	DisplayName string               `json:"display_name"`
	Description string               `json:"description,omitempty"`
	Category    CategoryType         `json:"category"`
	Package     string               `json:"package"`
	Version     float64              `json:"version"`
	MinVersion  float64              `json:"min_version,omitempty"`
	Properties  []PropertyDefinition `json:"properties"`
	IsAITool    bool                 `json:"is_ai_tool,omitempty"`
	Branches    []string             `json:"branches,omitempty"`
	Inputs      []string             `json:"inputs,omitempty"`
	Outputs     []string             `json:"outputs,omitempty"`
	Popularity  int                  `json:"popularity,omitempty"`
	Examples    []map[string]any     `json:"examples,omitempty"`
}

// IsTrigger reports whether the node type can start an execution.
func (d *NodeDefinition) IsTrigger() bool {
	return d.Category == CategoryTypeTrigger
}

// IsBranching reports whether outgoing connections must carry a branch tag.
func (d *NodeDefinition) IsBranching() bool {
	return len(d.Branches) > 0
}

// HasBranch reports whether branch is one of the declared output branches.
func (d *NodeDefinition) HasBranch(branch string) bool {
	return slices.Contains(d.Branches, branch)
}

// HasInput reports whether the node accepts connections on the given input port.
func (d *NodeDefinition) HasInput(port string) bool {
	if len(d.Inputs) == 0 {
		return port == PortMain
	}

	return slices.Contains(d.Inputs, port)
}

// HasOutput reports whether connections may leave the node from the given output port.
func (d *NodeDefinition) HasOutput(port string) bool {
	if len(d.Outputs) == 0 {
		return port == PortMain
	}

	return slices.Contains(d.Outputs, port)
}

// Property returns the property with the given name.
func (d *NodeDefinition) Property(name string) (PropertyDefinition, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}

	return PropertyDefinition{}, false
}

// JSONSchema renders the value constraints of the given properties as a JSON Schema document.
// Requiredness is not part of the schema: it depends on the validation profile.
func JSONSchema(properties []PropertyDefinition) map[string]any {
	props := make(map[string]any, len(properties))

	for _, p := range properties {
		schema := map[string]any{}

		switch p.Kind {
		case PropertyKindString, PropertyKindCron:
			schema["type"] = "string"
		case PropertyKindNumber:
			schema["type"] = "number"
		case PropertyKindBoolean:
			schema["type"] = "boolean"
		case PropertyKindCollection:
			schema["type"] = "object"
		case PropertyKindList:
			schema["type"] = "array"
		case PropertyKindOptions:
			if len(p.Options) > 0 {
				schema["enum"] = p.Options
			}
		case PropertyKindJSON:
			// any value
		}

		props[p.Name] = schema
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}
