package validation

import (
	"context"
	"slices"

	"github.com/dukex/flowguard/pkg/models"
)

// graph is the adjacency view of a workflow restricted to connections whose endpoints exist.
type graph struct {
	order    []string            // Node ids in workflow order
	out      map[string][]string // Successors, deterministic order, may repeat
	in       map[string]int      // Inbound edge count
	attached map[string][]string // Sub-node edges (non-main source port): source -> targets
}

func buildGraph(workflow *models.Workflow, nodes map[string]*models.WorkflowNode) *graph {
	g := &graph{
		out:      make(map[string][]string),
		in:       make(map[string]int),
		attached: make(map[string][]string),
	}

	seen := make(map[string]struct{}, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		if _, dup := seen[node.ID]; dup {
			continue
		}

		seen[node.ID] = struct{}{}
		g.order = append(g.order, node.ID)
	}

	for _, c := range workflow.Connections.All() {
		if nodes[c.SourceNodeID] == nil || nodes[c.TargetNodeID] == nil {
			continue
		}

		g.out[c.SourceNodeID] = append(g.out[c.SourceNodeID], c.TargetNodeID)
		g.in[c.TargetNodeID]++

		if c.SourcePort != models.PortMain {
			g.attached[c.SourceNodeID] = append(g.attached[c.SourceNodeID], c.TargetNodeID)
		}
	}

	return g
}

// reachable returns every node reachable from roots. Sub-nodes feeding a reachable node through a
// non-main port (language models, memories, tools) count as reachable too.
func (g *graph) reachable(ctx context.Context, roots []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(g.order))
	queue := slices.Clone(roots)

	for _, r := range roots {
		seen[r] = true
	}

	for {
		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			id := queue[0]
			queue = queue[1:]

			for _, next := range g.out[id] {
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}

		for _, id := range g.order {
			if seen[id] {
				continue
			}

			for _, target := range g.attached[id] {
				if seen[target] {
					seen[id] = true
					queue = append(queue, id)

					break
				}
			}
		}

		if len(queue) == 0 {
			return seen, nil
		}
	}
}

// cycles returns one closed walk per strongly connected component reachable from roots that
// contains a cycle. Each walk starts and ends on the same node and visits every node of the component.
func (g *graph) cycles(ctx context.Context, roots []string) ([][]string, error) {
	finish, err := g.finishOrder(ctx, roots)
	if err != nil {
		return nil, err
	}

	reverse := make(map[string][]string)
	for _, id := range g.order {
		for _, next := range g.out[id] {
			reverse[next] = append(reverse[next], id)
		}
	}

	inScope := make(map[string]bool, len(finish))
	for _, id := range finish {
		inScope[id] = true
	}

	component := make(map[string]int)

	var components [][]string

	for i := len(finish) - 1; i >= 0; i-- {
		start := finish[i]
		if _, done := component[start]; done {
			continue
		}

		idx := len(components)
		members := []string{start}
		component[start] = idx
		stack := []string{start}

		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			for _, prev := range reverse[id] {
				if _, done := component[prev]; done || !inScope[prev] {
					continue
				}

				component[prev] = idx
				members = append(members, prev)
				stack = append(stack, prev)
			}
		}

		components = append(components, members)
	}

	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	var walks [][]string

	for idx, members := range components {
		if len(members) == 1 && !slices.Contains(g.out[members[0]], members[0]) {
			continue
		}

		slices.SortFunc(members, func(a, b string) int { return position[a] - position[b] })
		walks = append(walks, g.closedWalk(members, func(id string) bool { return component[id] == idx }))
	}

	slices.SortFunc(walks, func(a, b []string) int { return position[a[0]] - position[b[0]] })

	return walks, nil
}

// finishOrder runs an iterative DFS from roots and returns nodes in post-order.
func (g *graph) finishOrder(ctx context.Context, roots []string) ([]string, error) {
	type frame struct {
		id   string
		next int
	}

	visited := make(map[string]bool, len(g.order))

	var finish []string

	for _, root := range roots {
		if visited[root] {
			continue
		}

		visited[root] = true
		stack := []frame{{id: root}}

		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			top := &stack[len(stack)-1]
			successors := g.out[top.id]

			if top.next < len(successors) {
				next := successors[top.next]
				top.next++

				if !visited[next] {
					visited[next] = true
					stack = append(stack, frame{id: next})
				}

				continue
			}

			finish = append(finish, top.id)
			stack = stack[:len(stack)-1]
		}
	}

	return finish, nil
}

// closedWalk chains shortest paths between the members, in order, and back to the first member.
func (g *graph) closedWalk(members []string, inComponent func(string) bool) []string {
	walk := []string{members[0]}
	current := members[0]

	for _, target := range append(members[1:], members[0]) {
		walk = append(walk, g.shortestPath(current, target, inComponent)...)
		current = target
	}

	return walk
}

// shortestPath returns the nodes after from up to and including to, staying inside the component.
func (g *graph) shortestPath(from, to string, inComponent func(string) bool) []string {
	parent := map[string]string{}
	queue := []string{from}
	seen := map[string]bool{}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, next := range g.out[id] {
			if !inComponent(next) || seen[next] {
				continue
			}

			seen[next] = true
			parent[next] = id

			if next == to {
				var path []string
				for at := to; ; at = parent[at] {
					path = append(path, at)
					if parent[at] == from {
						break
					}
				}

				slices.Reverse(path)

				return path
			}

			queue = append(queue, next)
		}
	}

	return []string{to}
}
