package executor

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-org/gantry/internal/core"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports map[string]core.NodeStatus
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{reports: make(map[string]core.NodeStatus)}
}

func (r *recordingReporter) HandleNodeStatus(_ context.Context, _, _, nodeID string, status core.NodeStatus, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[nodeID] = status
	return nil
}

func (r *recordingReporter) get(nodeID string) (core.NodeStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.reports[nodeID]
	return st, ok
}

func testExecGraph() *core.Graph {
	return &core.Graph{ID: "g1", TaskID: "t1", Policy: core.Policy{MaxConcurrent: 4}}
}

func TestCommandExecutorWorkNodeSuccess(t *testing.T) {
	reporter := newRecordingReporter()
	e := NewCommand(reporter, "")

	node := &core.Node{ID: "ok", Type: core.TypeWork, Status: core.NodeRunning, Run: "true"}
	require.NoError(t, e.Start(context.Background(), testExecGraph(), node))
	e.Wait()

	status, ok := reporter.get("ok")
	require.True(t, ok)
	assert.Equal(t, core.NodeDone, status)
}

func TestCommandExecutorWorkNodeFailure(t *testing.T) {
	reporter := newRecordingReporter()
	e := NewCommand(reporter, "")

	node := &core.Node{ID: "bad", Type: core.TypeWork, Status: core.NodeRunning, Run: "exit 1"}
	require.NoError(t, e.Start(context.Background(), testExecGraph(), node))
	e.Wait()

	status, ok := reporter.get("bad")
	require.True(t, ok)
	assert.Equal(t, core.NodeFailed, status)
}

func TestCommandExecutorWorkNodeBlocked(t *testing.T) {
	reporter := newRecordingReporter()
	e := NewCommand(reporter, "")

	node := &core.Node{
		ID: "stuck", Type: core.TypeWork, Status: core.NodeRunning,
		Run: fmt.Sprintf("exit %d", ExitCodeBlocked),
	}
	require.NoError(t, e.Start(context.Background(), testExecGraph(), node))
	e.Wait()

	status, ok := reporter.get("stuck")
	require.True(t, ok)
	assert.Equal(t, core.NodeBlocked, status)
}

func TestCommandExecutorHumanGateParksAwaiting(t *testing.T) {
	reporter := newRecordingReporter()
	e := NewCommand(reporter, "")

	node := &core.Node{ID: "review", Type: core.TypeGate, Status: core.NodeRunning}
	require.NoError(t, e.Start(context.Background(), testExecGraph(), node))

	status, ok := reporter.get("review")
	require.True(t, ok)
	assert.Equal(t, core.NodeAwaitingHuman, status)
}

func TestCommandExecutorAutoGateResolves(t *testing.T) {
	reporter := newRecordingReporter()
	e := NewCommand(reporter, "")

	node := &core.Node{ID: "lint", Type: core.TypeGate, Status: core.NodeRunning, Auto: true}
	require.NoError(t, e.Start(context.Background(), testExecGraph(), node))

	status, ok := reporter.get("lint")
	require.True(t, ok)
	assert.Equal(t, core.NodeDone, status)
}

func TestCommandExecutorRejectsEmptyCommand(t *testing.T) {
	e := NewCommand(newRecordingReporter(), "")

	node := &core.Node{ID: "empty", Type: core.TypeWork, Status: core.NodeRunning}
	err := e.Start(context.Background(), testExecGraph(), node)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no run command")
}
