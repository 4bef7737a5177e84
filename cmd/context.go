package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantry-org/gantry/internal/agent"
	"github.com/gantry-org/gantry/internal/config"
	"github.com/gantry-org/gantry/internal/core"
	"github.com/gantry-org/gantry/internal/executor"
	"github.com/gantry-org/gantry/internal/logger"
	"github.com/gantry-org/gantry/internal/metrics"
	"github.com/gantry-org/gantry/internal/persistence/filegraph"
)

// Context carries the loaded configuration and logger-bound context for a
// command invocation.
type Context struct {
	context.Context

	Command *cobra.Command
	Config  *config.Config
	Quiet   bool
}

// NewContext loads configuration, binds the logger into the context, and
// logs any warnings collected during loading.
func NewContext(cmd *cobra.Command) (*Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	quiet, _ := cmd.Flags().GetBool("quiet")

	var loaderOpts []config.LoaderOption
	if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(cfgPath))
	}
	cfg, err := config.NewLoader(loaderOpts...).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	if quiet {
		cfg.Quiet = true
	}

	var opts []logger.Option
	if cfg.Debug || os.Getenv("DEBUG") != "" {
		opts = append(opts, logger.WithDebug())
	}
	if cfg.Quiet {
		opts = append(opts, logger.WithQuiet())
	}
	if cfg.LogFormat != "" {
		opts = append(opts, logger.WithFormat(cfg.LogFormat))
	}
	ctx = logger.WithLogger(ctx, logger.NewLogger(opts...))

	for _, w := range cfg.Warnings {
		logger.Warn(ctx, w)
	}

	return &Context{
		Context: ctx,
		Command: cmd,
		Config:  cfg,
		Quiet:   cfg.Quiet,
	}, nil
}

// OpenStore opens the graph store under the configured data directory.
func (c *Context) OpenStore() *filegraph.Store {
	return filegraph.New(c.Config.DataDir)
}

// NewAgent wires a driver over the store with a command executor. The
// collector may be nil for one-shot commands.
func (c *Context) NewAgent(store core.GraphStore, collector *metrics.Collector) (*agent.Agent, *executor.CommandExecutor) {
	var opts []agent.Option
	opts = append(opts, agent.WithPollInterval(c.Config.PollInterval))
	if collector != nil {
		opts = append(opts, agent.WithMetrics(collector))
	}

	var a *agent.Agent
	exec := executor.NewCommand(reporterFunc(func(ctx context.Context, taskID, graphID, nodeID string, status core.NodeStatus, detail string) error {
		return a.HandleNodeStatus(ctx, taskID, graphID, nodeID, status, detail)
	}), c.Config.WorkDir)
	a = agent.New(store, exec, opts...)
	return a, exec
}

// reporterFunc adapts a function to the executor.Reporter interface. The
// indirection lets the executor and the driver reference each other.
type reporterFunc func(ctx context.Context, taskID, graphID, nodeID string, status core.NodeStatus, detail string) error

func (f reporterFunc) HandleNodeStatus(ctx context.Context, taskID, graphID, nodeID string, status core.NodeStatus, detail string) error {
	return f(ctx, taskID, graphID, nodeID, status, detail)
}
