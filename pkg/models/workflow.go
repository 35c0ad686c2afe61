// Package models defines the core domain models for workflow graphs, catalogs and validation reports.
package models

import (
	"slices"
	"time"
)

// Workflow is the aggregate root: a named graph of nodes and the connections between them.
type Workflow struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"                     validate:"required"`
	Nodes         []*WorkflowNode `json:"nodes"                    validate:"dive"`
	Connections   ConnectionMap   `json:"connections"`
	Settings      map[string]any  `json:"settings,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	ManualTrigger bool            `json:"manual_trigger,omitempty"` // Started by hand, no trigger node needed
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// NodeByName returns the node with the given display name, or nil.
func (w *Workflow) NodeByName(name string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.Name == name {
			return node
		}
	}

	return nil
}

// ResolveNode looks a node up by id first and by name second.
func (w *Workflow) ResolveNode(ref string) *WorkflowNode {
	if node := w.NodeByID(ref); node != nil {
		return node
	}

	return w.NodeByName(ref)
}

// HasNode reports whether a node with the given id exists.
func (w *Workflow) HasNode(id string) bool {
	return w.NodeByID(id) != nil
}

// HasTag reports whether the workflow carries the tag.
func (w *Workflow) HasTag(tag string) bool {
	return slices.Contains(w.Tags, tag)
}

// Clone returns a deep copy of the workflow. Patch operations only ever run against clones.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	clone := &Workflow{
		ID:            w.ID,
		Name:          w.Name,
		Nodes:         make([]*WorkflowNode, 0, len(w.Nodes)),
		Connections:   w.Connections.Clone(),
		Settings:      CloneMap(w.Settings),
		Tags:          slices.Clone(w.Tags),
		ManualTrigger: w.ManualTrigger,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}

	for _, node := range w.Nodes {
		clone.Nodes = append(clone.Nodes, node.Clone())
	}

	return clone
}

// CloneMap deep-copies a JSON-like map.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = CloneValue(v)
	}

	return out
}

// CloneValue deep-copies JSON-like values (maps, slices, scalars).
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}

		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = CloneMap(item)
		}

		return out
	case []string:
		return slices.Clone(val)
	default:
		return val
	}
}
