// Package patch applies ordered batches of diff operations to workflow graphs.
package patch

import (
	"encoding/json"

	"github.com/dukex/flowguard/pkg/models"
)

// OpType is the discriminator of an operation in its JSON form.
type OpType string

const (
	OpAddNode               OpType = "addNode"
	OpRemoveNode            OpType = "removeNode"
	OpUpdateNode            OpType = "updateNode"
	OpMoveNode              OpType = "moveNode"
	OpEnableNode            OpType = "enableNode"
	OpDisableNode           OpType = "disableNode"
	OpAddConnection         OpType = "addConnection"
	OpRemoveConnection      OpType = "removeConnection"
	OpCleanStaleConnections OpType = "cleanStaleConnections"
	OpUpdateSettings        OpType = "updateSettings"
	OpUpdateName            OpType = "updateName"
	OpAddTag                OpType = "addTag"
	OpRemoveTag             OpType = "removeTag"
)

// Operation is one diff operation. The set of implementations is closed: only this package defines them.
// Node references accept a node id or a node name.
type Operation interface {
	Type() OpType
	apply(s *state) error
}

// AddNode appends a node. An empty ID is derived from the workflow id and the node name.
type AddNode struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"                 validate:"required"`
	TypeID      string          `json:"type_id"              validate:"required"`
	TypeVersion float64         `json:"type_version"         validate:"gte=0"`
	Position    models.Position `json:"position"`
	Parameters  map[string]any  `json:"parameters,omitempty"`
	Disabled    bool            `json:"disabled,omitempty"`
}

// RemoveNode deletes a node and every connection touching it.
type RemoveNode struct {
	Node string `json:"node" validate:"required"`
}

// UpdateNode sets node fields by path: name, type_id, type_version, position, disabled,
// parameters, or a dot path into the parameters such as "parameters.options.timeout".
// A nil value under parameters deletes the key.
type UpdateNode struct {
	Node    string         `json:"node"    validate:"required"`
	Updates map[string]any `json:"updates" validate:"required,min=1"`
}

// MoveNode changes the canvas position of a node.
type MoveNode struct {
	Node     string          `json:"node"     validate:"required"`
	Position models.Position `json:"position"`
}

// EnableNode clears the disabled flag of a node.
type EnableNode struct {
	Node string `json:"node" validate:"required"`
}

// DisableNode sets the disabled flag of a node.
type DisableNode struct {
	Node string `json:"node" validate:"required"`
}

// AddConnection connects two node ports. Connections leaving the main output of a branching node
// must name one of its branches.
type AddConnection struct {
	Source     string `json:"source"                validate:"required"`
	SourcePort string `json:"source_port,omitempty"`
	Target     string `json:"target"                validate:"required"`
	TargetPort string `json:"target_port,omitempty"`
	Branch     string `json:"branch,omitempty"`
}

// RemoveConnection deletes one exact connection. Endpoints that no longer exist are matched by id.
type RemoveConnection struct {
	Source       string `json:"source"                  validate:"required"`
	SourcePort   string `json:"source_port,omitempty"`
	Target       string `json:"target"                  validate:"required"`
	TargetPort   string `json:"target_port,omitempty"`
	Branch       string `json:"branch,omitempty"`
	IgnoreErrors bool   `json:"ignore_errors,omitempty"` // Missing connection is not a failure
}

// CleanStaleConnections removes every connection whose source or target node does not exist.
type CleanStaleConnections struct{}

// UpdateSettings merges keys into the workflow settings. A nil value deletes the key.
type UpdateSettings struct {
	Settings map[string]any `json:"settings" validate:"required,min=1"`
}

// UpdateName renames the workflow.
type UpdateName struct {
	Name string `json:"name" validate:"required"`
}

// AddTag adds a tag to the workflow. Adding an existing tag is a no-op.
type AddTag struct {
	Tag string `json:"tag" validate:"required"`
}

// RemoveTag removes a tag from the workflow. Removing a missing tag is a no-op.
type RemoveTag struct {
	Tag string `json:"tag" validate:"required"`
}

func (AddNode) Type() OpType               { return OpAddNode }
func (RemoveNode) Type() OpType            { return OpRemoveNode }
func (UpdateNode) Type() OpType            { return OpUpdateNode }
func (MoveNode) Type() OpType              { return OpMoveNode }
func (EnableNode) Type() OpType            { return OpEnableNode }
func (DisableNode) Type() OpType           { return OpDisableNode }
func (AddConnection) Type() OpType         { return OpAddConnection }
func (RemoveConnection) Type() OpType      { return OpRemoveConnection }
func (CleanStaleConnections) Type() OpType { return OpCleanStaleConnections }
func (UpdateSettings) Type() OpType        { return OpUpdateSettings }
func (UpdateName) Type() OpType            { return OpUpdateName }
func (AddTag) Type() OpType                { return OpAddTag }
func (RemoveTag) Type() OpType             { return OpRemoveTag }

func (op AddNode) MarshalJSON() ([]byte, error) {
	type plain AddNode

	return withType(op.Type(), plain(op))
}

func (op RemoveNode) MarshalJSON() ([]byte, error) {
	type plain RemoveNode

	return withType(op.Type(), plain(op))
}

func (op UpdateNode) MarshalJSON() ([]byte, error) {
	type plain UpdateNode

	return withType(op.Type(), plain(op))
}

func (op MoveNode) MarshalJSON() ([]byte, error) {
	type plain MoveNode

	return withType(op.Type(), plain(op))
}

func (op EnableNode) MarshalJSON() ([]byte, error) {
	type plain EnableNode

	return withType(op.Type(), plain(op))
}

func (op DisableNode) MarshalJSON() ([]byte, error) {
	type plain DisableNode

	return withType(op.Type(), plain(op))
}

func (op AddConnection) MarshalJSON() ([]byte, error) {
	type plain AddConnection

	return withType(op.Type(), plain(op))
}

func (op RemoveConnection) MarshalJSON() ([]byte, error) {
	type plain RemoveConnection

	return withType(op.Type(), plain(op))
}

func (op CleanStaleConnections) MarshalJSON() ([]byte, error) {
	type plain CleanStaleConnections

	return withType(op.Type(), plain(op))
}

func (op UpdateSettings) MarshalJSON() ([]byte, error) {
	type plain UpdateSettings

	return withType(op.Type(), plain(op))
}

func (op UpdateName) MarshalJSON() ([]byte, error) {
	type plain UpdateName

	return withType(op.Type(), plain(op))
}

func (op AddTag) MarshalJSON() ([]byte, error) {
	type plain AddTag

	return withType(op.Type(), plain(op))
}

func (op RemoveTag) MarshalJSON() ([]byte, error) {
	type plain RemoveTag

	return withType(op.Type(), plain(op))
}

// withType marshals v and adds the "type" discriminator.
func withType(t OpType, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}

	typ, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}

	fields["type"] = typ

	return json.Marshal(fields)
}
