package core

import (
	"fmt"
	"slices"
)

// Validate checks the structural invariants of a graph. It runs at
// ingestion time (loader, store create) so the scheduler tick stays a total
// function over validated graphs and never has to reject input itself.
func Validate(g *Graph) error {
	var errs ErrorList

	if g.ID == "" {
		errs.Add(fmt.Errorf("graph id must not be empty"))
	}
	if g.TaskID == "" {
		errs.Add(fmt.Errorf("task id must not be empty"))
	}
	if g.Policy.MaxConcurrent < 1 {
		errs.Add(fmt.Errorf("policy.maxConcurrent must be >= 1, got %d", g.Policy.MaxConcurrent))
	}

	for id, node := range g.Nodes {
		if node == nil {
			errs.Add(fmt.Errorf("node %q is nil", id))
			continue
		}
		if node.ID == "" {
			errs.Add(fmt.Errorf("node %q has an empty id", id))
		} else if node.ID != id {
			errs.Add(fmt.Errorf("node key %q does not match node id %q", id, node.ID))
		}
		if node.Type == TypeWork && node.Status == NodePending && node.Run == "" {
			errs.Add(fmt.Errorf("work node %q has no run command", id))
		}
	}

	for i, e := range g.Edges {
		if _, ok := g.Nodes[e.From]; !ok {
			errs.Add(fmt.Errorf("edge %d references unknown source node %q", i, e.From))
		}
		if _, ok := g.Nodes[e.To]; !ok {
			errs.Add(fmt.Errorf("edge %d references unknown target node %q", i, e.To))
		}
		if e.From == e.To {
			errs.Add(fmt.Errorf("edge %d is a self-dependency on %q", i, e.From))
		}
	}

	if errs.HasErrors() {
		return &errs
	}

	for _, id := range g.NodeIDs() {
		node := g.Nodes[id]
		want := DepsOf(g, id)
		got := slices.Clone(node.Deps)
		slices.Sort(got)
		if !slices.Equal(got, want) {
			errs.Add(fmt.Errorf("node %q deps %v diverge from edges %v", id, node.Deps, want))
		}
	}

	if cycle := findHardCycle(g); cycle != nil {
		errs.Add(fmt.Errorf("hard dependency cycle: %v", cycle))
	}

	if errs.HasErrors() {
		return &errs
	}
	return nil
}

// DepsOf derives the structural dependencies of a node from the edge set:
// the sorted, de-duplicated source ids of all its incoming edges.
func DepsOf(g *Graph, nodeID string) []string {
	seen := make(map[string]struct{})
	var deps []string
	for _, e := range g.Edges {
		if e.To != nodeID {
			continue
		}
		if _, ok := seen[e.From]; ok {
			continue
		}
		seen[e.From] = struct{}{}
		deps = append(deps, e.From)
	}
	slices.Sort(deps)
	return deps
}

// findHardCycle detects a cycle among hard edges. Soft edges are ordering
// hints and may legitimately form cycles.
func findHardCycle(g *Graph) []string {
	const (
		unvisited = iota
		inProgress
		done
	)

	state := make(map[string]int, len(g.Nodes))
	hardFrom := make(map[string][]string)
	for _, e := range g.Edges {
		if e.Type == EdgeHard {
			hardFrom[e.From] = append(hardFrom[e.From], e.To)
		}
	}

	var cycle []string
	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		state[id] = inProgress
		path = append(path, id)
		for _, next := range hardFrom[id] {
			switch state[next] {
			case inProgress:
				start := slices.Index(path, next)
				cycle = append(slices.Clone(path[start:]), next)
				return true
			case unvisited:
				if visit(next, path) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	for _, id := range g.NodeIDs() {
		if state[id] == unvisited && visit(id, nil) {
			return cycle
		}
	}
	return nil
}
