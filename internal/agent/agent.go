// Package agent drives execution graphs: it serializes scheduler ticks
// against the versioned store, hands dispatch events to the executor, and
// applies status reports and gate resolutions through the same
// compare-and-swap write path the scheduler uses.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gantry-org/gantry/internal/core"
	"github.com/gantry-org/gantry/internal/core/scheduler"
	"github.com/gantry-org/gantry/internal/executor"
	"github.com/gantry-org/gantry/internal/logger"
	"github.com/gantry-org/gantry/internal/metrics"
)

const (
	defaultPollInterval = 2 * time.Second

	// conflictRetries bounds re-read/re-tick cycles after a lost
	// compare-and-swap before the error is surfaced to the caller.
	conflictRetries      = 5
	conflictRetryBackoff = 50 * time.Millisecond
)

var _ executor.Reporter = (*Agent)(nil)

// Agent coordinates ticks, dispatch, and status reports for all graphs in
// the store.
type Agent struct {
	store        core.GraphStore
	executor     executor.Executor
	metrics      *metrics.Collector
	pollInterval time.Duration

	// mu serializes tick-persist-dispatch cycles within this process;
	// cross-process serialization is the store's compare-and-swap.
	mu sync.Mutex
}

// Option configures an Agent.
type Option func(*Agent)

// WithPollInterval sets the daemon poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(a *Agent) {
		a.pollInterval = d
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Agent) {
		a.metrics = c
	}
}

// New creates an Agent over the given store and executor.
func New(store core.GraphStore, exec executor.Executor, opts ...Option) *Agent {
	a := &Agent{
		store:        store,
		executor:     exec,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run polls the store and ticks every incomplete graph until the context
// is canceled. Event-driven ticks (status reports, gate resolutions) run
// independently of this loop; polling covers missed wakeups.
func (a *Agent) Run(ctx context.Context) error {
	logger.Info(ctx, "Agent started", "pollInterval", a.pollInterval.String())
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		a.tickAll(ctx)
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Agent stopped")
			a.executor.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Agent) tickAll(ctx context.Context) {
	graphs, err := a.store.List(ctx)
	if err != nil {
		logger.Error(ctx, "Failed to list graphs", "err", err)
		return
	}
	for _, g := range graphs {
		if core.IsComplete(g) {
			continue
		}
		if _, err := a.TickGraph(ctx, g.TaskID, g.ID, nil); err != nil {
			logger.Error(ctx, "Tick failed", "taskId", g.TaskID, "graphId", g.ID, "err", err)
		}
	}
}

// TickGraph runs one tick-persist-dispatch cycle for a graph. On a version
// conflict the graph is re-read and re-ticked, up to conflictRetries
// times. The returned result reflects the persisted snapshot.
func (a *Agent) TickGraph(ctx context.Context, taskID, graphID string, allowedNodeIDs []string) (*scheduler.TickResult, error) {
	res, err := a.tickAndPersist(ctx, taskID, graphID, allowedNodeIDs)
	if err != nil || len(res.Events) == 0 {
		return res, err
	}

	// dispatch outside the tick lock: gates report synchronously and the
	// report path re-enters TickGraph
	a.dispatch(ctx, res.Graph, res.Events)
	logger.Info(ctx, "Tick dispatched nodes",
		"taskId", taskID, "graphId", graphID,
		"dispatched", len(res.Events), "graphVersion", res.Graph.Version)
	return res, nil
}

func (a *Agent) tickAndPersist(ctx context.Context, taskID, graphID string, allowedNodeIDs []string) (*scheduler.TickResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			backoff(ctx, attempt)
		}

		g, err := a.store.Get(ctx, taskID, graphID)
		if err != nil {
			return nil, err
		}

		res := scheduler.Tick(ctx, g, scheduler.TickInput{
			Now:            time.Now(),
			AllowedNodeIDs: allowedNodeIDs,
		})
		if a.metrics != nil {
			a.metrics.TickCompleted(len(res.Events))
			a.metrics.SetRunningWork(taskID, graphID, res.Graph.RunningWorkCount())
		}
		if len(res.Events) == 0 {
			return &res, nil
		}

		newVersion, err := a.store.Save(ctx, res.Graph, g.Version)
		if err != nil {
			if errors.Is(err, core.ErrVersionConflict) {
				if a.metrics != nil {
					a.metrics.VersionConflict()
				}
				logger.Info(ctx, "Tick lost version race, retrying",
					"taskId", taskID, "graphId", graphID, "attempt", attempt+1)
				lastErr = err
				continue
			}
			return nil, err
		}
		res.Graph.Version = newVersion
		return &res, nil
	}
	return nil, fmt.Errorf("tick retries exhausted for %s/%s: %w", taskID, graphID, lastErr)
}

func (a *Agent) dispatch(ctx context.Context, g *core.Graph, events []scheduler.DispatchEvent) {
	for _, ev := range events {
		node := g.Nodes[ev.NodeID]
		if err := a.executor.Start(ctx, g, node); err != nil {
			logger.Error(ctx, "Failed to start node", "node", ev.NodeID, "err", err)
			// surface the failure as an ordinary terminal report
			if rerr := a.HandleNodeStatus(ctx, g.TaskID, g.ID, ev.NodeID, core.NodeFailed, err.Error()); rerr != nil {
				logger.Error(ctx, "Failed to record start failure", "node", ev.NodeID, "err", rerr)
			}
		}
	}
}

// HandleNodeStatus applies an executor's status report for a running node
// and triggers the next tick. Reports for nodes already in the reported
// status are ignored, so redelivery is harmless.
func (a *Agent) HandleNodeStatus(ctx context.Context, taskID, graphID, nodeID string, status core.NodeStatus, detail string) error {
	var lastErr error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			backoff(ctx, attempt)
		}

		g, err := a.store.Get(ctx, taskID, graphID)
		if err != nil {
			return err
		}
		node, ok := g.Nodes[nodeID]
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrNodeNotFound, nodeID)
		}
		if node.Status == status {
			return nil
		}
		if node.Status != core.NodeRunning {
			logger.Warn(ctx, "Dropping stale status report",
				"node", nodeID, "reported", status.String(), "current", node.Status.String())
			return nil
		}

		next := g.Clone()
		next.Nodes[nodeID].Status = status
		if _, err := a.store.Save(ctx, next, g.Version); err != nil {
			if errors.Is(err, core.ErrVersionConflict) {
				if a.metrics != nil {
					a.metrics.VersionConflict()
				}
				lastErr = err
				continue
			}
			return err
		}

		logger.Info(ctx, "Node status reported",
			"taskId", taskID, "graphId", graphID, "node", nodeID,
			"status", status.String(), "detail", detail)

		if _, err := a.TickGraph(ctx, taskID, graphID, nil); err != nil {
			logger.Error(ctx, "Post-report tick failed", "taskId", taskID, "graphId", graphID, "err", err)
		}
		return nil
	}
	return fmt.Errorf("status report retries exhausted for node %s: %w", nodeID, lastErr)
}

func backoff(ctx context.Context, attempt int) {
	d := conflictRetryBackoff << (attempt - 1)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
