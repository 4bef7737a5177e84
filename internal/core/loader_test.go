package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpec = `
taskId: release
mode: project
maxConcurrent: 3
nodes:
  - id: plan
    run: "agent plan"
  - id: implement
    run: "agent implement"
  - id: review
    type: gate
  - id: ship
    run: "agent ship"
edges:
  - from: plan
    to: implement
  - from: implement
    to: review
  - from: review
    to: ship
    condition: on_success
  - from: plan
    to: ship
    type: soft
`

func TestLoadYAML(t *testing.T) {
	g, err := LoadYAML([]byte(testSpec))
	require.NoError(t, err)
	require.NoError(t, Validate(g))

	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "release", g.TaskID)
	assert.Equal(t, int64(1), g.Version)
	assert.Equal(t, ModeProject, g.Mode)
	assert.Equal(t, 3, g.Policy.MaxConcurrent)
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 4)

	assert.Equal(t, TypeGate, g.Nodes["review"].Type)
	assert.Equal(t, TypeWork, g.Nodes["plan"].Type)
	for _, node := range g.Nodes {
		assert.Equal(t, NodePending, node.Status)
	}

	// deps derived from edges, sorted
	assert.Equal(t, []string{"plan", "review"}, g.Nodes["ship"].Deps)

	// defaults: hard edge, on_success condition
	assert.Equal(t, EdgeHard, g.Edges[0].Type)
	assert.Equal(t, OnSuccess, g.Edges[0].Condition)
	assert.Equal(t, EdgeSoft, g.Edges[3].Type)

	assert.True(t, g.DoneCriteria.AllRequiredGatesPassed)
	assert.True(t, g.DoneCriteria.NoRunnableOrPendingWork)
}

func TestLoadYAMLDefaultsMaxConcurrent(t *testing.T) {
	g, err := LoadYAML([]byte("taskId: t\nnodes:\n  - id: a\n    run: \"true\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, g.Policy.MaxConcurrent)
}

func TestLoadYAMLRejectsDuplicateNode(t *testing.T) {
	_, err := LoadYAML([]byte(`
taskId: t
nodes:
  - id: a
    run: "true"
  - id: a
    run: "true"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestLoadYAMLRejectsUnknownEnumToken(t *testing.T) {
	_, err := LoadYAML([]byte(`
taskId: t
nodes:
  - id: a
    type: cron
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid node type")

	_, err = LoadYAML([]byte(`
taskId: t
nodes:
  - id: a
    run: "true"
  - id: b
    run: "true"
edges:
  - from: a
    to: b
    condition: whenever
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid edge condition")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	spec := "nodes:\n  - id: a\n    run: \"true\"\n"
	require.NoError(t, os.WriteFile(path, []byte(spec), 0o600))

	g, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", g.TaskID, "task id defaults to file name")
}

func TestLoadFileRejectsInvalidGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	spec := "nodes:\n  - id: a\n    run: \"true\"\nedges:\n  - from: a\n    to: ghost\n"
	require.NoError(t, os.WriteFile(path, []byte(spec), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}
