package patch

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/validation"
	"github.com/google/uuid"
)

// state is the scratch workflow an operation is applied to.
type state struct {
	workflow *models.Workflow
	catalog  validation.Catalog
}

func (s *state) resolve(ref string) (*models.WorkflowNode, error) {
	node := s.workflow.ResolveNode(ref)
	if node == nil {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, ref)
	}

	return node, nil
}

// nodeID resolves ref to a node id, falling back to ref itself for nodes that no longer exist.
func (s *state) nodeID(ref string) string {
	if node := s.workflow.ResolveNode(ref); node != nil {
		return node.ID
	}

	return ref
}

func (op AddNode) apply(s *state) error {
	w := s.workflow

	id := op.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(w.ID+"/"+op.Name)).String()
	}

	if w.HasNode(id) {
		return fmt.Errorf("%w: id %q already exists", ErrDuplicateNode, id)
	}

	if w.NodeByName(op.Name) != nil {
		return fmt.Errorf("%w: name %q already exists", ErrDuplicateNode, op.Name)
	}

	params := models.CloneMap(op.Parameters)
	if params == nil {
		params = map[string]any{}
	}

	w.Nodes = append(w.Nodes, &models.WorkflowNode{
		ID:          id,
		Name:        op.Name,
		TypeID:      op.TypeID,
		TypeVersion: op.TypeVersion,
		Position:    op.Position,
		Parameters:  params,
		Disabled:    op.Disabled,
	})

	return nil
}

func (op RemoveNode) apply(s *state) error {
	node, err := s.resolve(op.Node)
	if err != nil {
		return err
	}

	s.workflow.Nodes = slices.DeleteFunc(s.workflow.Nodes, func(n *models.WorkflowNode) bool { return n.ID == node.ID })
	s.workflow.Connections.RemoveNode(node.ID)

	return nil
}

func (op UpdateNode) apply(s *state) error {
	node, err := s.resolve(op.Node)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(op.Updates))
	for path := range op.Updates {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	for _, path := range paths {
		if err := s.setField(node, path, op.Updates[path]); err != nil {
			return err
		}
	}

	return nil
}

func (s *state) setField(node *models.WorkflowNode, path string, value any) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidUpdate, path, fmt.Sprintf(format, args...))
	}

	field, rest, nested := strings.Cut(path, ".")
	if nested && field != "parameters" {
		return invalid("only parameters support nested paths")
	}

	switch field {
	case "name":
		name, ok := value.(string)
		if !ok || strings.TrimSpace(name) == "" {
			return invalid("expected a non-empty string")
		}

		if other := s.workflow.NodeByName(name); other != nil && other.ID != node.ID {
			return fmt.Errorf("%w: name %q already exists", ErrDuplicateNode, name)
		}

		node.Name = name
	case "type_id":
		typeID, ok := value.(string)
		if !ok || typeID == "" {
			return invalid("expected a non-empty string")
		}

		node.TypeID = typeID
	case "type_version":
		version, ok := toFloat(value)
		if !ok || version < 0 {
			return invalid("expected a non-negative number")
		}

		node.TypeVersion = version
	case "position":
		position, ok := toPosition(value)
		if !ok {
			return invalid("expected [x, y]")
		}

		node.Position = position
	case "disabled":
		disabled, ok := value.(bool)
		if !ok {
			return invalid("expected a boolean")
		}

		node.Disabled = disabled
	case "parameters":
		if nested {
			return setParameter(node, strings.Split(rest, "."), value, invalid)
		}

		params, ok := value.(map[string]any)
		if !ok {
			return invalid("expected an object")
		}

		node.Parameters = models.CloneMap(params)
	default:
		return invalid("unknown field")
	}

	return nil
}

// setParameter walks keys through nested objects and lists, creating objects for missing keys.
func setParameter(node *models.WorkflowNode, keys []string, value any, invalid func(string, ...any) error) error {
	if slices.Contains(keys, "") {
		return invalid("empty path segment")
	}

	if node.Parameters == nil {
		node.Parameters = map[string]any{}
	}

	var current any = node.Parameters

	for i, key := range keys {
		last := i == len(keys)-1

		switch container := current.(type) {
		case map[string]any:
			if last {
				if value == nil {
					delete(container, key)
				} else {
					container[key] = models.CloneValue(value)
				}

				return nil
			}

			next, exists := container[key]
			if !exists || next == nil {
				if value == nil {
					return nil
				}

				next = map[string]any{}
				container[key] = next
			}

			current = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(container) {
				return invalid("index %q out of range", key)
			}

			if last {
				if value == nil {
					return invalid("list elements cannot be deleted")
				}

				container[idx] = models.CloneValue(value)

				return nil
			}

			current = container[idx]
		default:
			return invalid("%q is not an object", keys[i-1])
		}
	}

	return nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func toPosition(value any) (models.Position, bool) {
	switch v := value.(type) {
	case models.Position:
		return v, true
	case []float64:
		if len(v) == 2 {
			return models.Position{v[0], v[1]}, true
		}
	case []any:
		if len(v) == 2 {
			x, okX := toFloat(v[0])
			y, okY := toFloat(v[1])

			return models.Position{x, y}, okX && okY
		}
	}

	return models.Position{}, false
}

func (op MoveNode) apply(s *state) error {
	node, err := s.resolve(op.Node)
	if err != nil {
		return err
	}

	node.Position = op.Position

	return nil
}

func (op EnableNode) apply(s *state) error {
	node, err := s.resolve(op.Node)
	if err != nil {
		return err
	}

	node.Disabled = false

	return nil
}

func (op DisableNode) apply(s *state) error {
	node, err := s.resolve(op.Node)
	if err != nil {
		return err
	}

	node.Disabled = true

	return nil
}

func (op AddConnection) apply(s *state) error {
	c := models.Connection{SourcePort: op.SourcePort, TargetPort: op.TargetPort, Branch: op.Branch}.Normalize()

	// Branch rules are checked before the endpoints.
	source := s.workflow.ResolveNode(op.Source)
	if source != nil {
		if def, ok := s.catalog.Lookup(source.TypeID); ok {
			if err := checkBranch(def, c); err != nil {
				return fmt.Errorf("%w (node %q)", err, source.Name)
			}

			if !def.HasOutput(c.SourcePort) {
				return fmt.Errorf("%w: %q on node %q", ErrInvalidOutputPort, c.SourcePort, source.Name)
			}
		}
	}

	if source == nil {
		return fmt.Errorf("%w: source %q", ErrNodeNotFound, op.Source)
	}

	target, err := s.resolve(op.Target)
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}

	if def, ok := s.catalog.Lookup(target.TypeID); ok && !def.HasInput(c.TargetPort) {
		return fmt.Errorf("%w: %q on node %q", ErrInvalidPort, c.TargetPort, target.Name)
	}

	c.SourceNodeID = source.ID
	c.TargetNodeID = target.ID

	if !s.workflow.Connections.Add(c) {
		return fmt.Errorf("%w: %s", ErrDuplicateConnection, c.Key())
	}

	return nil
}

// checkBranch enforces branch tags on every item-carrying output of a branching node.
func checkBranch(def *models.NodeDefinition, c models.Connection) error {
	carriesItems := !models.IsSubNodePort(c.SourcePort)

	switch {
	case def.IsBranching() && carriesItems && c.Branch == "":
		return fmt.Errorf("%w: expected one of %s", ErrBranchRequired, strings.Join(def.Branches, ", "))
	case def.IsBranching() && carriesItems && !def.HasBranch(c.Branch):
		return fmt.Errorf("%w: %q, expected one of %s", ErrInvalidBranch, c.Branch, strings.Join(def.Branches, ", "))
	case !def.IsBranching() && c.Branch != "":
		return fmt.Errorf("%w: got branch %q", ErrUnexpectedBranch, c.Branch)
	}

	return nil
}

func (op RemoveConnection) apply(s *state) error {
	c := models.Connection{
		SourceNodeID: s.nodeID(op.Source),
		SourcePort:   op.SourcePort,
		TargetNodeID: s.nodeID(op.Target),
		TargetPort:   op.TargetPort,
		Branch:       op.Branch,
	}

	if !s.workflow.Connections.Remove(c) && !op.IgnoreErrors {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, c.Key())
	}

	return nil
}

func (CleanStaleConnections) apply(s *state) error {
	w := s.workflow

	w.Connections.RemoveWhere(func(c models.Connection) bool {
		return !w.HasNode(c.SourceNodeID) || !w.HasNode(c.TargetNodeID)
	})

	return nil
}

func (op UpdateSettings) apply(s *state) error {
	if s.workflow.Settings == nil {
		s.workflow.Settings = map[string]any{}
	}

	for key, value := range op.Settings {
		if value == nil {
			delete(s.workflow.Settings, key)

			continue
		}

		s.workflow.Settings[key] = models.CloneValue(value)
	}

	return nil
}

func (op UpdateName) apply(s *state) error {
	s.workflow.Name = op.Name

	return nil
}

func (op AddTag) apply(s *state) error {
	if !s.workflow.HasTag(op.Tag) {
		s.workflow.Tags = append(s.workflow.Tags, op.Tag)
	}

	return nil
}

func (op RemoveTag) apply(s *state) error {
	s.workflow.Tags = slices.DeleteFunc(s.workflow.Tags, func(tag string) bool { return tag == op.Tag })

	return nil
}
