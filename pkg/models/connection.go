package models

import (
	"slices"
	"sort"
)

// Connection is a directed edge between two node ports, optionally tagged with a branch.
type Connection struct {
	SourceNodeID string `json:"source_node_id" validate:"required"`
	SourcePort   string `json:"source_port"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
	TargetPort   string `json:"target_port"`
	Branch       string `json:"branch,omitempty"`
}

// Normalize fills default port names.
func (c Connection) Normalize() Connection {
	c.SourcePort = portOrDefault(c.SourcePort)
	c.TargetPort = portOrDefault(c.TargetPort)

	return c
}

// Key renders the connection as "{source}:{port}[branch]->{target}:{port}".
func (c Connection) Key() string {
	c = c.Normalize()

	source := MakePortID(c.SourceNodeID, c.SourcePort)
	if c.Branch != "" {
		source += "[" + c.Branch + "]"
	}

	return source + "->" + MakePortID(c.TargetNodeID, c.TargetPort)
}

// Touches reports whether the connection has the node as source or target.
func (c Connection) Touches(nodeID string) bool {
	return c.SourceNodeID == nodeID || c.TargetNodeID == nodeID
}

// ConnectionTarget is the far end of a connection inside a ConnectionMap.
type ConnectionTarget struct {
	NodeID string `json:"node_id"`
	Port   string `json:"port"`
}

// ConnectionMap is a multimap keyed by source node id, then source port, then branch
// ("" for untagged), pointing to the ordered list of targets.
type ConnectionMap map[string]map[string]map[string][]ConnectionTarget

// Add inserts the connection. It returns false when an identical edge already exists.
func (m *ConnectionMap) Add(c Connection) bool {
	c = c.Normalize()

	if m.Has(c) {
		return false
	}

	if *m == nil {
		*m = make(ConnectionMap)
	}

	ports, ok := (*m)[c.SourceNodeID]
	if !ok {
		ports = make(map[string]map[string][]ConnectionTarget)
		(*m)[c.SourceNodeID] = ports
	}

	branches, ok := ports[c.SourcePort]
	if !ok {
		branches = make(map[string][]ConnectionTarget)
		ports[c.SourcePort] = branches
	}

	branches[c.Branch] = append(branches[c.Branch], ConnectionTarget{NodeID: c.TargetNodeID, Port: c.TargetPort})

	return true
}

// Has reports whether the exact edge exists.
func (m ConnectionMap) Has(c Connection) bool {
	c = c.Normalize()

	target := ConnectionTarget{NodeID: c.TargetNodeID, Port: c.TargetPort}

	return slices.Contains(m[c.SourceNodeID][c.SourcePort][c.Branch], target)
}

// Remove deletes the exact edge. It returns false when the edge does not exist.
func (m ConnectionMap) Remove(c Connection) bool {
	c = c.Normalize()

	targets := m[c.SourceNodeID][c.SourcePort][c.Branch]
	target := ConnectionTarget{NodeID: c.TargetNodeID, Port: c.TargetPort}

	idx := slices.Index(targets, target)
	if idx < 0 {
		return false
	}

	m[c.SourceNodeID][c.SourcePort][c.Branch] = slices.Delete(targets, idx, idx+1)
	m.prune(c.SourceNodeID, c.SourcePort, c.Branch)

	return true
}

// RemoveWhere deletes every edge matching the predicate and returns the removed edges.
func (m ConnectionMap) RemoveWhere(match func(Connection) bool) []Connection {
	var removed []Connection

	for _, c := range m.All() {
		if match(c) && m.Remove(c) {
			removed = append(removed, c)
		}
	}

	return removed
}

// RemoveNode deletes every edge touching the node.
func (m ConnectionMap) RemoveNode(nodeID string) []Connection {
	return m.RemoveWhere(func(c Connection) bool { return c.Touches(nodeID) })
}

func (m ConnectionMap) prune(source, port, branch string) {
	if len(m[source][port][branch]) == 0 {
		delete(m[source][port], branch)
	}

	if len(m[source][port]) == 0 {
		delete(m[source], port)
	}

	if len(m[source]) == 0 {
		delete(m, source)
	}
}

// All flattens the multimap into a deterministic list: sorted by source, port and branch,
// keeping target order within a branch.
func (m ConnectionMap) All() []Connection {
	var out []Connection

	for _, source := range sortedKeys(m) {
		ports := m[source]
		for _, port := range sortedKeys(ports) {
			branches := ports[port]
			for _, branch := range sortedKeys(branches) {
				for _, target := range branches[branch] {
					out = append(out, Connection{
						SourceNodeID: source,
						SourcePort:   port,
						TargetNodeID: target.NodeID,
						TargetPort:   target.Port,
						Branch:       branch,
					})
				}
			}
		}
	}

	return out
}

// From returns the edges leaving the node.
func (m ConnectionMap) From(nodeID string) []Connection {
	var out []Connection

	for _, c := range m.All() {
		if c.SourceNodeID == nodeID {
			out = append(out, c)
		}
	}

	return out
}

// To returns the edges entering the node.
func (m ConnectionMap) To(nodeID string) []Connection {
	var out []Connection

	for _, c := range m.All() {
		if c.TargetNodeID == nodeID {
			out = append(out, c)
		}
	}

	return out
}

// Len returns the number of edges.
func (m ConnectionMap) Len() int {
	count := 0

	for _, ports := range m {
		for _, branches := range ports {
			for _, targets := range branches {
				count += len(targets)
			}
		}
	}

	return count
}

// Clone returns a deep copy of the multimap.
func (m ConnectionMap) Clone() ConnectionMap {
	if m == nil {
		return nil
	}

	out := make(ConnectionMap, len(m))

	for source, ports := range m {
		outPorts := make(map[string]map[string][]ConnectionTarget, len(ports))
		for port, branches := range ports {
			outBranches := make(map[string][]ConnectionTarget, len(branches))
			for branch, targets := range branches {
				outBranches[branch] = slices.Clone(targets)
			}

			outPorts[port] = outBranches
		}

		out[source] = outPorts
	}

	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
