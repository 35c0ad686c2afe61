package patch

import (
	"fmt"

	"github.com/dukex/flowguard/pkg/models"
)

// checkpoint records the structural defects a workflow already has, so that an operation is only
// blamed for the ones it introduces.
type checkpoint struct {
	dangling map[string]bool
	ids      map[string]bool
	names    map[string]bool
}

func takeCheckpoint(w *models.Workflow) checkpoint {
	cp := checkpoint{
		dangling: make(map[string]bool),
		ids:      make(map[string]bool),
		names:    make(map[string]bool),
	}

	ids := make(map[string]int, len(w.Nodes))
	names := make(map[string]int, len(w.Nodes))

	for _, node := range w.Nodes {
		ids[node.ID]++
		names[node.Name]++

		if ids[node.ID] > 1 {
			cp.ids[node.ID] = true
		}

		if names[node.Name] > 1 {
			cp.names[node.Name] = true
		}
	}

	for _, c := range w.Connections.All() {
		if ids[c.SourceNodeID] == 0 || ids[c.TargetNodeID] == 0 {
			cp.dangling[c.Key()] = true
		}
	}

	return cp
}

// verify fails when w has a dangling connection or duplicate node id or name not present at the checkpoint.
func (cp checkpoint) verify(w *models.Workflow) error {
	after := takeCheckpoint(w)

	for key := range after.dangling {
		if !cp.dangling[key] {
			return fmt.Errorf("%w: %s", ErrDanglingConnection, key)
		}
	}

	for id := range after.ids {
		if !cp.ids[id] {
			return fmt.Errorf("%w: id %q", ErrDuplicateNode, id)
		}
	}

	for name := range after.names {
		if !cp.names[name] {
			return fmt.Errorf("%w: name %q", ErrDuplicateNode, name)
		}
	}

	return nil
}
