// Package scheduler implements the execution-graph tick: a pure,
// deterministic admission-control pass deciding which pending nodes become
// eligible to run, given dependency status, the concurrency policy, and an
// optional dispatch allow-list.
//
// The tick performs no I/O and never mutates its input; persistence,
// process spawning, and notifications live in thin adapters around it.
package scheduler

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/gantry-org/gantry/internal/core"
	"github.com/gantry-org/gantry/internal/logger"
)

// TickInput carries the per-invocation parameters of a tick.
type TickInput struct {
	// Now is reserved for time-gated edge conditions. Current conditions
	// are time-free, so it is accepted and passed through unused.
	Now time.Time

	// AllowedNodeIDs, when non-nil, restricts dispatch to exactly these
	// node ids for this call. The filter applies to work and gate nodes
	// alike; an empty non-nil list dispatches nothing.
	AllowedNodeIDs []string
}

// DispatchEvent records one node transitioned from pending to running.
type DispatchEvent struct {
	NodeID string `json:"nodeId"`
}

// TickResult is the next graph snapshot plus the dispatch event log, one
// event per dispatched node in ascending node id order.
type TickResult struct {
	Graph  *core.Graph
	Events []DispatchEvent
}

// Tick computes the next graph snapshot. Only the status of admitted nodes
// changes, pending to running; every other node is left exactly as
// reported. Ticking the result again without an external status change
// yields no events.
func Tick(ctx context.Context, g *core.Graph, in TickInput) TickResult {
	next := g.Clone()

	var ready []*core.Node
	for _, id := range next.NodeIDs() {
		node := next.Nodes[id]
		if node.Status != core.NodePending || !IsReady(ctx, next, node) {
			continue
		}
		ready = append(ready, node)
	}

	admitted := SelectForDispatch(ctx, ready, next, in.AllowedNodeIDs)

	events := make([]DispatchEvent, 0, len(admitted))
	for _, node := range admitted {
		node.Status = core.NodeRunning
		events = append(events, DispatchEvent{NodeID: node.ID})
	}

	return TickResult{Graph: next, Events: events}
}

// IsReady reports whether the node's hard incoming edges permit dispatch
// this tick. Soft edges never block, regardless of upstream status or
// condition. A node with no incoming hard edges is always ready.
func IsReady(ctx context.Context, g *core.Graph, node *core.Node) bool {
	for _, e := range g.EdgesTo(node.ID) {
		if !edgeSatisfied(ctx, g, e) {
			return false
		}
	}
	return true
}

// edgeSatisfied evaluates one incoming edge against its source's status.
//
// Blocked and awaiting_human upstreams are terminal-but-indeterminate: the
// edge is satisfied only under an always condition. Unknown edge types or
// conditions on an unvalidated graph are treated as soft and logged,
// rather than corrupting the schedule.
func edgeSatisfied(ctx context.Context, g *core.Graph, e core.Edge) bool {
	if e.Type != core.EdgeHard {
		if e.Type != core.EdgeSoft {
			logger.Warn(ctx, "Unknown edge type treated as soft", "from", e.From, "to", e.To)
		}
		return true
	}
	if e.Condition != core.OnSuccess && e.Condition != core.OnFailure && e.Condition != core.Always {
		logger.Warn(ctx, "Unknown edge condition treated as soft", "from", e.From, "to", e.To)
		return true
	}

	dep, ok := g.Nodes[e.From]
	if !ok {
		logger.Warn(ctx, "Edge references unknown node, treated as soft", "from", e.From, "to", e.To)
		return true
	}

	switch dep.Status {
	case core.NodeDone:
		return e.Condition == core.OnSuccess || e.Condition == core.Always

	case core.NodeFailed:
		return e.Condition == core.OnFailure || e.Condition == core.Always

	case core.NodeBlocked, core.NodeAwaitingHuman:
		return e.Condition == core.Always

	default: // pending or running upstream: wait
		return false
	}
}

// SelectForDispatch applies the allow-list and the concurrency policy to
// the ready nodes and returns the admitted subset in ascending node id
// order. Gates are admitted without consuming capacity; work nodes consume
// slots computed from the pre-tick running-work count.
func SelectForDispatch(ctx context.Context, ready []*core.Node, g *core.Graph, allowed []string) []*core.Node {
	if allowed != nil {
		allowSet := lo.SliceToMap(allowed, func(id string) (string, struct{}) {
			return id, struct{}{}
		})
		ready = lo.Filter(ready, func(node *core.Node, _ int) bool {
			_, ok := allowSet[node.ID]
			return ok
		})
	}

	slots := g.Policy.MaxConcurrent - g.RunningWorkCount()

	var admitted []*core.Node
	for _, node := range ready {
		if node.Type == core.TypeWork {
			if slots <= 0 {
				logger.Debug(ctx, "Work node deferred, concurrency cap reached",
					"node", node.ID, "maxConcurrent", g.Policy.MaxConcurrent)
				continue
			}
			slots--
		}
		admitted = append(admitted, node)
	}
	return admitted
}
