// Package executor turns dispatched nodes into real activity. Work nodes
// spawn an external agent process and report a terminal status from its
// exit code; gate nodes either auto-resolve or are parked awaiting human
// approval. The scheduler never calls into this package directly; the
// driver hands it dispatch events.
package executor

import (
	"context"

	"github.com/gantry-org/gantry/internal/core"
)

// Reporter receives node status transitions from executors. The driver
// implements it and writes reports through the versioned store.
type Reporter interface {
	HandleNodeStatus(ctx context.Context, taskID, graphID, nodeID string, status core.NodeStatus, detail string) error
}

// Executor starts the activity behind one dispatched node. Start returns
// once the node's execution has begun; the terminal status arrives later
// through the Reporter.
type Executor interface {
	Start(ctx context.Context, graph *core.Graph, node *core.Node) error

	// Wait blocks until all started nodes have reported.
	Wait()
}
