package core

import (
	"errors"
	"strings"
)

var (
	// ErrVersionConflict indicates a compare-and-swap write lost the race:
	// the stored graph version moved past the version the writer read.
	// Recoverable by re-reading the graph and re-applying the mutation.
	ErrVersionConflict = errors.New("graph version conflict")

	// ErrGraphNotFound indicates no graph is stored under the given key.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrGraphExists indicates a create collided with a stored graph.
	ErrGraphExists = errors.New("graph already exists")

	// ErrNodeNotFound indicates the node id does not exist in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNotAGate indicates gate resolution was attempted on a work node.
	ErrNotAGate = errors.New("node is not a gate")

	// ErrGateNotAwaiting indicates gate resolution was attempted on a gate
	// that is not awaiting human approval.
	ErrGateNotAwaiting = errors.New("gate is not awaiting approval")
)

// ErrorList aggregates validation errors so a malformed graph is reported
// in full rather than one defect at a time.
type ErrorList struct {
	errors []error
}

// Add appends a non-nil error to the list.
func (e *ErrorList) Add(err error) {
	if err != nil {
		e.errors = append(e.errors, err)
	}
}

func (e *ErrorList) Error() string {
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasErrors reports whether any error was added.
func (e *ErrorList) HasErrors() bool {
	return len(e.errors) > 0
}
