package agent

import (
	"context"
	"fmt"

	"github.com/gantry-org/gantry/internal/core"
	"github.com/gantry-org/gantry/internal/logger"
)

// GateResolution is a human or automated decision on an awaiting gate.
type GateResolution struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`

	// IfMatchVersion is the graph version the resolver read. The write is
	// rejected with ErrVersionConflict if the stored version has moved on;
	// the resolver must re-read and decide again.
	IfMatchVersion int64 `json:"-"`
}

// ResolveGate transitions an awaiting_human gate directly to done or
// failed, bypassing the tick, under the same compare-and-swap contract as
// scheduler dispatch. Returns the new graph version.
//
// Unlike status reports, a version conflict is not retried here: the
// decision was made against a snapshot that no longer exists, so the
// resolver has to look again.
func (a *Agent) ResolveGate(ctx context.Context, taskID, graphID, nodeID string, res GateResolution) (int64, error) {
	g, err := a.store.Get(ctx, taskID, graphID)
	if err != nil {
		return 0, err
	}
	if g.Version != res.IfMatchVersion {
		if a.metrics != nil {
			a.metrics.VersionConflict()
		}
		return 0, fmt.Errorf("%w: resolution read %d, stored %d",
			core.ErrVersionConflict, res.IfMatchVersion, g.Version)
	}

	node, ok := g.Nodes[nodeID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrNodeNotFound, nodeID)
	}
	if node.Type != core.TypeGate {
		return 0, fmt.Errorf("%w: %s", core.ErrNotAGate, nodeID)
	}
	if node.Status != core.NodeAwaitingHuman {
		return 0, fmt.Errorf("%w: %s is %s", core.ErrGateNotAwaiting, nodeID, node.Status)
	}

	next := g.Clone()
	gate := next.Nodes[nodeID]
	if res.Approved {
		gate.Status = core.NodeDone
	} else {
		gate.Status = core.NodeFailed
	}
	gate.Feedback = res.Feedback

	newVersion, err := a.store.Save(ctx, next, res.IfMatchVersion)
	if err != nil {
		return 0, err
	}

	logger.Info(ctx, "Gate resolved",
		"taskId", taskID, "graphId", graphID, "node", nodeID,
		"approved", res.Approved, "graphVersion", newVersion)

	if _, err := a.TickGraph(ctx, taskID, graphID, nil); err != nil {
		logger.Error(ctx, "Post-resolution tick failed", "taskId", taskID, "graphId", graphID, "err", err)
	}
	return newVersion, nil
}
