package agent

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-org/gantry/internal/core"
	"github.com/gantry-org/gantry/internal/persistence/filegraph"
)

// fakeExecutor records dispatched nodes and, when report is set, reports a
// terminal status synchronously the way gate dispatch does.
type fakeExecutor struct {
	mu      sync.Mutex
	started []string
	report  func(ctx context.Context, g *core.Graph, n *core.Node) error
}

func (f *fakeExecutor) Start(ctx context.Context, g *core.Graph, n *core.Node) error {
	f.mu.Lock()
	f.started = append(f.started, n.ID)
	f.mu.Unlock()
	if f.report != nil {
		return f.report(ctx, g, n)
	}
	return nil
}

func (f *fakeExecutor) Wait() {}

func (f *fakeExecutor) startedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := append([]string(nil), f.started...)
	sort.Strings(ids)
	return ids
}

func workNode(id string) *core.Node {
	return &core.Node{ID: id, Type: core.TypeWork, Status: core.NodePending, Run: "true"}
}

func gateNode(id string) *core.Node {
	return &core.Node{ID: id, Type: core.TypeGate, Status: core.NodePending}
}

func buildGraph(t *testing.T, maxConcurrent int, nodes []*core.Node, edges []core.Edge) *core.Graph {
	t.Helper()
	g := &core.Graph{
		ID:     "g1",
		TaskID: "t1",
		Policy: core.Policy{MaxConcurrent: maxConcurrent},
		Nodes:  make(map[string]*core.Node, len(nodes)),
		Edges:  edges,
		DoneCriteria: core.DoneCriteria{
			AllRequiredGatesPassed:  true,
			NoRunnableOrPendingWork: true,
		},
	}
	for _, n := range nodes {
		g.Nodes[n.ID] = n
	}
	for id, n := range g.Nodes {
		deps := map[string]struct{}{}
		for _, e := range edges {
			if e.To == id {
				deps[e.From] = struct{}{}
			}
		}
		n.Deps = nil
		for from := range deps {
			n.Deps = append(n.Deps, from)
		}
		sort.Strings(n.Deps)
	}
	require.NoError(t, core.Validate(g))
	return g
}

func newTestAgent(t *testing.T, exec *fakeExecutor) (*Agent, *filegraph.Store) {
	t.Helper()
	store := filegraph.New(t.TempDir())
	return New(store, exec), store
}

func TestTickGraphDispatchesAndPersists(t *testing.T) {
	exec := &fakeExecutor{}
	a, store := newTestAgent(t, exec)
	ctx := context.Background()

	g := buildGraph(t, 1, []*core.Node{workNode("a"), workNode("b")}, nil)
	require.NoError(t, store.Create(ctx, g))

	res, err := a.TickGraph(ctx, "t1", "g1", nil)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "a", res.Events[0].NodeID)
	assert.Equal(t, []string{"a"}, exec.startedIDs())

	stored, err := store.Get(ctx, "t1", "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, core.NodeRunning, stored.Nodes["a"].Status)
	assert.Equal(t, core.NodePending, stored.Nodes["b"].Status)
}

func TestTickGraphNoReadyNodesPersistsNothing(t *testing.T) {
	exec := &fakeExecutor{}
	a, store := newTestAgent(t, exec)
	ctx := context.Background()

	g := buildGraph(t, 2,
		[]*core.Node{workNode("a"), workNode("b")},
		[]core.Edge{{From: "a", To: "b", Type: core.EdgeHard, Condition: core.OnSuccess}})
	g.Nodes["a"].Status = core.NodeRunning
	require.NoError(t, store.Create(ctx, g))

	res, err := a.TickGraph(ctx, "t1", "g1", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Empty(t, exec.startedIDs())

	stored, err := store.Get(ctx, "t1", "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version, "empty tick must not bump the version")
}

func TestSynchronousReportsCascadeThroughChain(t *testing.T) {
	// The executor reports done immediately, as auto gates do. A single
	// external TickGraph call must then walk the whole chain.
	exec := &fakeExecutor{}
	var a *Agent
	exec.report = func(ctx context.Context, g *core.Graph, n *core.Node) error {
		return a.HandleNodeStatus(ctx, g.TaskID, g.ID, n.ID, core.NodeDone, "")
	}
	a, store := newTestAgent(t, exec)
	ctx := context.Background()

	g := buildGraph(t, 1,
		[]*core.Node{workNode("a"), workNode("b"), workNode("c")},
		[]core.Edge{
			{From: "a", To: "b", Type: core.EdgeHard, Condition: core.OnSuccess},
			{From: "b", To: "c", Type: core.EdgeHard, Condition: core.OnSuccess},
		})
	require.NoError(t, store.Create(ctx, g))

	_, err := a.TickGraph(ctx, "t1", "g1", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, exec.startedIDs())
	stored, err := store.Get(ctx, "t1", "g1")
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, core.NodeDone, stored.Nodes[id].Status, id)
	}
	assert.True(t, core.IsComplete(stored))
}

// conflictingStore makes the agent's first Save lose the version race by
// sneaking an unrelated write in between Get and Save.
type conflictingStore struct {
	core.GraphStore
	once sync.Once
}

func (s *conflictingStore) Save(ctx context.Context, graph *core.Graph, expectedVersion int64) (int64, error) {
	s.once.Do(func() {
		stored, err := s.GraphStore.Get(ctx, graph.TaskID, graph.ID)
		if err != nil {
			return
		}
		_, _ = s.GraphStore.Save(ctx, stored, stored.Version)
	})
	return s.GraphStore.Save(ctx, graph, expectedVersion)
}

func TestTickGraphRetriesOnVersionConflict(t *testing.T) {
	exec := &fakeExecutor{}
	inner := filegraph.New(t.TempDir())
	store := &conflictingStore{GraphStore: inner}
	a := New(store, exec)
	ctx := context.Background()

	g := buildGraph(t, 1, []*core.Node{workNode("a")}, nil)
	require.NoError(t, inner.Create(ctx, g))

	res, err := a.TickGraph(ctx, "t1", "g1", nil)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	stored, err := inner.Get(ctx, "t1", "g1")
	require.NoError(t, err)
	assert.Equal(t, core.NodeRunning, stored.Nodes["a"].Status)
	// version 1 -> 2 (injected write) -> 3 (retried tick)
	assert.Equal(t, int64(3), stored.Version)
}

func TestHandleNodeStatusRedeliveryIsHarmless(t *testing.T) {
	exec := &fakeExecutor{}
	a, store := newTestAgent(t, exec)
	ctx := context.Background()

	g := buildGraph(t, 1, []*core.Node{workNode("a")}, nil)
	g.Nodes["a"].Status = core.NodeRunning
	require.NoError(t, store.Create(ctx, g))

	require.NoError(t, a.HandleNodeStatus(ctx, "t1", "g1", "a", core.NodeDone, ""))
	require.NoError(t, a.HandleNodeStatus(ctx, "t1", "g1", "a", core.NodeDone, ""))

	stored, err := store.Get(ctx, "t1", "g1")
	require.NoError(t, err)
	assert.Equal(t, core.NodeDone, stored.Nodes["a"].Status)
	assert.Equal(t, int64(2), stored.Version, "redelivery must not write again")
}

func TestHandleNodeStatusDropsStaleReport(t *testing.T) {
	exec := &fakeExecutor{}
	a, store := newTestAgent(t, exec)
	ctx := context.Background()

	g := buildGraph(t, 1, []*core.Node{workNode("a")}, nil)
	require.NoError(t, store.Create(ctx, g))

	// "a" is pending, not running; a terminal report for it is stale.
	require.NoError(t, a.HandleNodeStatus(ctx, "t1", "g1", "a", core.NodeFailed, "late"))

	stored, err := store.Get(ctx, "t1", "g1")
	require.NoError(t, err)
	assert.Equal(t, core.NodePending, stored.Nodes["a"].Status)
}

func TestHandleNodeStatusUnknownNode(t *testing.T) {
	exec := &fakeExecutor{}
	a, store := newTestAgent(t, exec)
	ctx := context.Background()

	g := buildGraph(t, 1, []*core.Node{workNode("a")}, nil)
	require.NoError(t, store.Create(ctx, g))

	err := a.HandleNodeStatus(ctx, "t1", "g1", "ghost", core.NodeDone, "")
	assert.ErrorIs(t, err, core.ErrNodeNotFound)
}

func TestResolveGateApprove(t *testing.T) {
	exec := &fakeExecutor{}
	a, store := newTestAgent(t, exec)
	ctx := context.Background()

	g := buildGraph(t, 1,
		[]*core.Node{gateNode("review"), workNode("ship")},
		[]core.Edge{{From: "review", To: "ship", Type: core.EdgeHard, Condition: core.OnSuccess}})
	g.Nodes["review"].Status = core.NodeAwaitingHuman
	require.NoError(t, store.Create(ctx, g))

	version, err := a.ResolveGate(ctx, "t1", "g1", "review", GateResolution{
		Approved:       true,
		Feedback:       "looks good",
		IfMatchVersion: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	stored, err := store.Get(ctx, "t1", "g1")
	require.NoError(t, err)
	assert.Equal(t, core.NodeDone, stored.Nodes["review"].Status)
	assert.Equal(t, "looks good", stored.Nodes["review"].Feedback)
	// approval unblocks the downstream work node in the follow-up tick
	assert.Equal(t, core.NodeRunning, stored.Nodes["ship"].Status)
	assert.Equal(t, []string{"ship"}, exec.startedIDs())
}

func TestResolveGateReject(t *testing.T) {
	exec := &fakeExecutor{}
	a, store := newTestAgent(t, exec)
	ctx := context.Background()

	g := buildGraph(t, 1,
		[]*core.Node{gateNode("review"), workNode("ship")},
		[]core.Edge{{From: "review", To: "ship", Type: core.EdgeHard, Condition: core.OnSuccess}})
	g.Nodes["review"].Status = core.NodeAwaitingHuman
	require.NoError(t, store.Create(ctx, g))

	_, err := a.ResolveGate(ctx, "t1", "g1", "review", GateResolution{
		Approved:       false,
		Feedback:       "needs rework",
		IfMatchVersion: 1,
	})
	require.NoError(t, err)

	stored, err := store.Get(ctx, "t1", "g1")
	require.NoError(t, err)
	assert.Equal(t, core.NodeFailed, stored.Nodes["review"].Status)
	assert.Equal(t, "needs rework", stored.Nodes["review"].Feedback)
	assert.Equal(t, core.NodePending, stored.Nodes["ship"].Status)
	assert.Empty(t, exec.startedIDs())
}

func TestResolveGateVersionConflictNotRetried(t *testing.T) {
	exec := &fakeExecutor{}
	a, store := newTestAgent(t, exec)
	ctx := context.Background()

	g := buildGraph(t, 1, []*core.Node{gateNode("review")}, nil)
	g.Nodes["review"].Status = core.NodeAwaitingHuman
	require.NoError(t, store.Create(ctx, g))

	_, err := a.ResolveGate(ctx, "t1", "g1", "review", GateResolution{
		Approved:       true,
		IfMatchVersion: 7,
	})
	assert.ErrorIs(t, err, core.ErrVersionConflict)

	stored, err := store.Get(ctx, "t1", "g1")
	require.NoError(t, err)
	assert.Equal(t, core.NodeAwaitingHuman, stored.Nodes["review"].Status)
}

func TestResolveGateRejectsNonGates(t *testing.T) {
	exec := &fakeExecutor{}
	a, store := newTestAgent(t, exec)
	ctx := context.Background()

	g := buildGraph(t, 1, []*core.Node{workNode("a"), gateNode("review")}, nil)
	require.NoError(t, store.Create(ctx, g))

	_, err := a.ResolveGate(ctx, "t1", "g1", "a", GateResolution{Approved: true, IfMatchVersion: 1})
	assert.ErrorIs(t, err, core.ErrNotAGate)

	// pending, not awaiting_human
	_, err = a.ResolveGate(ctx, "t1", "g1", "review", GateResolution{Approved: true, IfMatchVersion: 1})
	assert.ErrorIs(t, err, core.ErrGateNotAwaiting)

	_, err = a.ResolveGate(ctx, "t1", "g1", "ghost", GateResolution{Approved: true, IfMatchVersion: 1})
	assert.ErrorIs(t, err, core.ErrNodeNotFound)
}
