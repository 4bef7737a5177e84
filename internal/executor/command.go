package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/gantry-org/gantry/internal/core"
	"github.com/gantry-org/gantry/internal/logger"
)

// ExitCodeBlocked is the exit code an agent process uses to report that it
// cannot proceed without outside intervention (EX_TEMPFAIL).
const ExitCodeBlocked = 75

var _ Executor = (*CommandExecutor)(nil)

// CommandExecutor runs work nodes as shell commands and resolves gates.
type CommandExecutor struct {
	reporter Reporter
	workDir  string
	wg       sync.WaitGroup
}

// NewCommand creates a CommandExecutor reporting through the given
// Reporter. workDir, when non-empty, is the working directory for spawned
// processes.
func NewCommand(reporter Reporter, workDir string) *CommandExecutor {
	return &CommandExecutor{reporter: reporter, workDir: workDir}
}

// Start begins execution of a dispatched node.
//
// Gate nodes resolve synchronously: automated gates report done, human
// gates report awaiting_human and wait for the resolution API. Work nodes
// spawn their command asynchronously and report when it exits.
func (e *CommandExecutor) Start(ctx context.Context, graph *core.Graph, node *core.Node) error {
	taskID, graphID := graph.TaskID, graph.ID

	if node.Type == core.TypeGate {
		status := core.NodeAwaitingHuman
		if node.Auto {
			status = core.NodeDone
		}
		logger.Info(ctx, "Gate dispatched", "node", node.ID, "auto", node.Auto)
		return e.reporter.HandleNodeStatus(ctx, taskID, graphID, node.ID, status, "")
	}

	if node.Run == "" {
		return fmt.Errorf("work node %q has no run command", node.ID)
	}

	run := node.Run
	nodeID := node.ID
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		logger.Info(ctx, "Work node started", "node", nodeID, "run", run)
		cmd := exec.CommandContext(ctx, "sh", "-c", run) //nolint:gosec // command comes from the validated graph spec
		cmd.Dir = e.workDir
		output, err := cmd.CombinedOutput()

		status, detail := statusFromRun(err)
		logger.Info(ctx, "Work node finished",
			"node", nodeID, "status", status.String(), "output", string(output))

		if rerr := e.reporter.HandleNodeStatus(ctx, taskID, graphID, nodeID, status, detail); rerr != nil {
			logger.Error(ctx, "Failed to report node status", "node", nodeID, "err", rerr)
		}
	}()
	return nil
}

// Wait blocks until all spawned work nodes have reported.
func (e *CommandExecutor) Wait() {
	e.wg.Wait()
}

func statusFromRun(err error) (core.NodeStatus, string) {
	if err == nil {
		return core.NodeDone, ""
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == ExitCodeBlocked {
		return core.NodeBlocked, err.Error()
	}
	return core.NodeFailed, err.Error()
}
