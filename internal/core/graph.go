package core

import (
	"slices"
)

// Policy caps the number of simultaneously running work nodes in a graph.
// Gate nodes are exempt from the cap.
type Policy struct {
	MaxConcurrent int `json:"maxConcurrent"`
}

// DoneCriteria selects which completion checks a graph requires. Both are
// enabled for every graph built by the loader; disabling one narrows the
// completion check for graphs authored directly.
type DoneCriteria struct {
	AllRequiredGatesPassed  bool `json:"allRequiredGatesPassed"`
	NoRunnableOrPendingWork bool `json:"noRunnableOrPendingWork"`
}

// Node is a unit of work executed by an external agent process, or a gate
// requiring human or automated approval.
type Node struct {
	ID     string     `json:"id"`
	Name   string     `json:"name,omitempty"`
	Type   NodeType   `json:"type"`
	Status NodeStatus `json:"status"`

	// Deps is a derived projection of incoming edges, kept for callers that
	// want the structural dependencies without scanning Edges. Scheduling
	// decisions read Edges only.
	Deps []string `json:"deps,omitempty"`

	// Run is the command a work node hands to the executor.
	Run string `json:"run,omitempty"`

	// Auto marks a gate that resolves without human approval.
	Auto bool `json:"auto,omitempty"`

	// Feedback records the reviewer's note from gate resolution.
	Feedback string `json:"feedback,omitempty"`
}

// Edge is a directed, typed, conditioned dependency between two nodes.
type Edge struct {
	From      string        `json:"from"`
	To        string        `json:"to"`
	Type      EdgeType      `json:"type"`
	Condition EdgeCondition `json:"condition"`
}

// Graph is the execution plan for one task: the unit the scheduler ticks
// over and the persistence layer versions.
type Graph struct {
	ID     string `json:"id"`
	TaskID string `json:"taskId"`

	// Version is the optimistic-concurrency counter. Every persisted
	// mutation is applied against the version it read and increments it.
	Version int64 `json:"graphVersion"`

	Mode         ExecutionMode    `json:"mode"`
	Policy       Policy           `json:"policy"`
	Nodes        map[string]*Node `json:"nodes"`
	Edges        []Edge           `json:"edges"`
	DoneCriteria DoneCriteria     `json:"doneCriteria"`
}

// Clone returns a deep copy of the graph. The scheduler ticks on a clone so
// the caller's snapshot is never mutated.
func (g *Graph) Clone() *Graph {
	clone := *g
	clone.Nodes = make(map[string]*Node, len(g.Nodes))
	for id, node := range g.Nodes {
		n := *node
		n.Deps = slices.Clone(node.Deps)
		clone.Nodes[id] = &n
	}
	clone.Edges = slices.Clone(g.Edges)
	return &clone
}

// NodeIDs returns all node ids in ascending order. Iterating nodes through
// this keeps tick output and event order deterministic.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// EdgesTo returns the incoming edges of the given node in definition order.
func (g *Graph) EdgesTo(nodeID string) []Edge {
	var edges []Edge
	for _, e := range g.Edges {
		if e.To == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// RunningWorkCount counts work nodes currently in running status. The tick
// computes its admission budget from this pre-tick count.
func (g *Graph) RunningWorkCount() int {
	count := 0
	for _, node := range g.Nodes {
		if node.Type == TypeWork && node.Status == NodeRunning {
			count++
		}
	}
	return count
}

// IsComplete evaluates the graph's done criteria against the current node
// set. It is consulted by task-stage advancement, never by the tick.
func IsComplete(g *Graph) bool {
	if g.DoneCriteria.AllRequiredGatesPassed {
		for _, node := range g.Nodes {
			if node.Type == TypeGate && node.Status != NodeDone {
				return false
			}
		}
	}
	if g.DoneCriteria.NoRunnableOrPendingWork {
		for _, node := range g.Nodes {
			if node.Type != TypeWork {
				continue
			}
			if node.Status == NodePending || node.Status == NodeRunning {
				return false
			}
		}
	}
	return true
}
