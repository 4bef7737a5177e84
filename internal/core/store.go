package core

import "context"

// GraphStore persists graphs keyed by task and graph id, with optimistic
// concurrency on the graph version. Scheduler dispatch and gate resolution
// both write through Save so neither can silently clobber the other.
type GraphStore interface {
	// Create stores a new graph. Returns ErrGraphExists if a graph is
	// already stored under the same key.
	Create(ctx context.Context, graph *Graph) error

	// Get returns the stored graph, or ErrGraphNotFound.
	Get(ctx context.Context, taskID, graphID string) (*Graph, error)

	// Save writes the graph if the stored version still equals
	// expectedVersion, bumping the version by one. Returns the new version,
	// or ErrVersionConflict when the stored version has moved on; the
	// caller must re-read and re-apply.
	Save(ctx context.Context, graph *Graph, expectedVersion int64) (int64, error)

	// List returns all stored graphs.
	List(ctx context.Context) ([]*Graph, error)

	// Remove deletes the stored graph.
	Remove(ctx context.Context, taskID, graphID string) error
}
