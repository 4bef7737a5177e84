package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
)

// graphSpec is the YAML shape a graph is authored in. Enum fields are
// parsed from their canonical tokens; omitted fields take defaults
// (type: work, edge type: hard, condition: on_success).
type graphSpec struct {
	TaskID        string     `yaml:"taskId"`
	Mode          string     `yaml:"mode"`
	MaxConcurrent int        `yaml:"maxConcurrent"`
	Nodes         []nodeSpec `yaml:"nodes"`
	Edges         []edgeSpec `yaml:"edges"`
	DoneCriteria  *struct {
		AllRequiredGatesPassed  bool `yaml:"allRequiredGatesPassed"`
		NoRunnableOrPendingWork bool `yaml:"noRunnableOrPendingWork"`
	} `yaml:"doneCriteria"`
}

type nodeSpec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Run  string `yaml:"run"`
	Auto bool   `yaml:"auto"`
}

type edgeSpec struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Type      string `yaml:"type"`
	Condition string `yaml:"condition"`
}

// LoadFile reads a graph spec from a YAML file and builds a validated
// graph. The task id defaults to the file name without extension.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the CLI
	if err != nil {
		return nil, fmt.Errorf("failed to read graph spec: %w", err)
	}
	g, err := LoadYAML(data)
	if err != nil {
		return nil, fmt.Errorf("invalid graph spec %s: %w", path, err)
	}
	if g.TaskID == "" {
		base := filepath.Base(path)
		g.TaskID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err := Validate(g); err != nil {
		return nil, fmt.Errorf("invalid graph spec %s: %w", path, err)
	}
	return g, nil
}

// LoadYAML builds a graph from YAML spec data. All nodes start pending and
// node deps are derived from the edge set. The caller validates once the
// task id is settled.
func LoadYAML(data []byte) (*Graph, error) {
	var spec graphSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	return build(&spec)
}

func build(spec *graphSpec) (*Graph, error) {
	mode, err := ParseExecutionMode(spec.Mode)
	if err != nil {
		return nil, err
	}

	maxConcurrent := spec.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = 1
	}

	g := &Graph{
		ID:      uuid.NewString(),
		TaskID:  spec.TaskID,
		Version: 1,
		Mode:    mode,
		Policy:  Policy{MaxConcurrent: maxConcurrent},
		Nodes:   make(map[string]*Node, len(spec.Nodes)),
		DoneCriteria: DoneCriteria{
			AllRequiredGatesPassed:  true,
			NoRunnableOrPendingWork: true,
		},
	}
	if spec.DoneCriteria != nil {
		g.DoneCriteria = DoneCriteria(*spec.DoneCriteria)
	}

	for _, n := range spec.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node with empty id")
		}
		if _, ok := g.Nodes[n.ID]; ok {
			return nil, fmt.Errorf("duplicate node id: %q", n.ID)
		}
		nodeType, err := ParseNodeType(n.Type)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
		g.Nodes[n.ID] = &Node{
			ID:     n.ID,
			Name:   n.Name,
			Type:   nodeType,
			Status: NodePending,
			Run:    n.Run,
			Auto:   n.Auto,
		}
	}

	for i, e := range spec.Edges {
		edgeType, err := ParseEdgeType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		condition, err := ParseEdgeCondition(e.Condition)
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		g.Edges = append(g.Edges, Edge{
			From:      e.From,
			To:        e.To,
			Type:      edgeType,
			Condition: condition,
		})
	}

	for id, node := range g.Nodes {
		node.Deps = DepsOf(g, id)
	}

	return g, nil
}
