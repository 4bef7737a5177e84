package core

import (
	"encoding/json"
	"fmt"
)

// ExecutionMode is a coarse tag describing how a graph is driven: a single
// standalone task or one graph inside a project-level multi-task plan. It
// affects surrounding orchestration, not the tick algorithm.
type ExecutionMode int

const (
	ModeSingle ExecutionMode = iota
	ModeProject
)

// String returns the canonical lowercase token used across APIs, logs, and
// persisted graph files.
func (m ExecutionMode) String() string {
	switch m {
	case ModeProject:
		return "project"
	case ModeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// ParseExecutionMode parses the canonical token into an ExecutionMode.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch s {
	case "single", "":
		return ModeSingle, nil
	case "project":
		return ModeProject, nil
	default:
		return ModeSingle, fmt.Errorf("invalid execution mode: %q", s)
	}
}

// NodeType distinguishes capacity-limited work nodes from gates.
type NodeType int

const (
	TypeWork NodeType = iota
	TypeGate
)

func (t NodeType) String() string {
	switch t {
	case TypeGate:
		return "gate"
	case TypeWork:
		return "work"
	default:
		return "unknown"
	}
}

// ParseNodeType parses the canonical token into a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	switch s {
	case "work", "":
		return TypeWork, nil
	case "gate":
		return TypeGate, nil
	default:
		return TypeWork, fmt.Errorf("invalid node type: %q", s)
	}
}

// NodeStatus represents the lifecycle phases for an individual node.
//
// Pending is the only status the scheduler itself may change (to Running).
// Running is only ever exited by an external status report. Done and Failed
// are terminal; Blocked and AwaitingHuman are externally reported holds.
type NodeStatus int

const (
	NodePending NodeStatus = iota
	NodeRunning
	NodeDone
	NodeFailed
	NodeBlocked
	NodeAwaitingHuman
)

// IsTerminal checks if the status is a final outcome.
func (s NodeStatus) IsTerminal() bool {
	return s == NodeDone || s == NodeFailed
}

// String returns the canonical lowercase token for the node lifecycle phase.
func (s NodeStatus) String() string {
	switch s {
	case NodeRunning:
		return "running"
	case NodeDone:
		return "done"
	case NodeFailed:
		return "failed"
	case NodeBlocked:
		return "blocked"
	case NodeAwaitingHuman:
		return "awaiting_human"
	case NodePending:
		return "pending"
	default:
		return "unknown"
	}
}

// ParseNodeStatus parses the canonical token into a NodeStatus.
func ParseNodeStatus(s string) (NodeStatus, error) {
	switch s {
	case "pending", "":
		return NodePending, nil
	case "running":
		return NodeRunning, nil
	case "done":
		return NodeDone, nil
	case "failed":
		return NodeFailed, nil
	case "blocked":
		return NodeBlocked, nil
	case "awaiting_human":
		return NodeAwaitingHuman, nil
	default:
		return NodePending, fmt.Errorf("invalid node status: %q", s)
	}
}

// EdgeType distinguishes blocking dependencies from ordering hints.
type EdgeType int

const (
	// EdgeHard blocks dispatch of the target until the edge condition is
	// satisfied by the source's terminal status.
	EdgeHard EdgeType = iota

	// EdgeSoft never blocks dispatch; it is an ordering hint only.
	EdgeSoft
)

func (t EdgeType) String() string {
	switch t {
	case EdgeSoft:
		return "soft"
	case EdgeHard:
		return "hard"
	default:
		return "unknown"
	}
}

// ParseEdgeType parses the canonical token into an EdgeType.
func ParseEdgeType(s string) (EdgeType, error) {
	switch s {
	case "hard", "":
		return EdgeHard, nil
	case "soft":
		return EdgeSoft, nil
	default:
		return EdgeHard, fmt.Errorf("invalid edge type: %q", s)
	}
}

// EdgeCondition is evaluated against the source node's terminal status when
// the edge type is hard.
type EdgeCondition int

const (
	OnSuccess EdgeCondition = iota
	OnFailure
	Always
)

func (c EdgeCondition) String() string {
	switch c {
	case OnFailure:
		return "on_failure"
	case Always:
		return "always"
	case OnSuccess:
		return "on_success"
	default:
		return "unknown"
	}
}

// ParseEdgeCondition parses the canonical token into an EdgeCondition.
func ParseEdgeCondition(s string) (EdgeCondition, error) {
	switch s {
	case "on_success", "":
		return OnSuccess, nil
	case "on_failure":
		return OnFailure, nil
	case "always":
		return Always, nil
	default:
		return OnSuccess, fmt.Errorf("invalid edge condition: %q", s)
	}
}

func marshalToken(s fmt.Stringer) ([]byte, error) {
	return json.Marshal(s.String())
}

func unmarshalToken(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", err
	}
	return s, nil
}

func (m ExecutionMode) MarshalJSON() ([]byte, error) { return marshalToken(m) }

func (m *ExecutionMode) UnmarshalJSON(data []byte) error {
	s, err := unmarshalToken(data)
	if err != nil {
		return err
	}
	*m, err = ParseExecutionMode(s)
	return err
}

func (t NodeType) MarshalJSON() ([]byte, error) { return marshalToken(t) }

func (t *NodeType) UnmarshalJSON(data []byte) error {
	s, err := unmarshalToken(data)
	if err != nil {
		return err
	}
	*t, err = ParseNodeType(s)
	return err
}

func (s NodeStatus) MarshalJSON() ([]byte, error) { return marshalToken(s) }

func (s *NodeStatus) UnmarshalJSON(data []byte) error {
	tok, err := unmarshalToken(data)
	if err != nil {
		return err
	}
	*s, err = ParseNodeStatus(tok)
	return err
}

func (t EdgeType) MarshalJSON() ([]byte, error) { return marshalToken(t) }

func (t *EdgeType) UnmarshalJSON(data []byte) error {
	s, err := unmarshalToken(data)
	if err != nil {
		return err
	}
	*t, err = ParseEdgeType(s)
	return err
}

func (c EdgeCondition) MarshalJSON() ([]byte, error) { return marshalToken(c) }

func (c *EdgeCondition) UnmarshalJSON(data []byte) error {
	s, err := unmarshalToken(data)
	if err != nil {
		return err
	}
	*c, err = ParseEdgeCondition(s)
	return err
}
