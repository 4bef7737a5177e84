package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantry-org/gantry/internal/logger"
)

func cmdTick() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one tick-dispatch cycle for a graph",
		Long: `Evaluate a graph once, dispatch every ready node, and wait for the
spawned work to report. Useful for driving a graph step by step without
the daemon.

The --allow flag restricts dispatch to the named nodes; repeat it or
pass a comma-separated list. Without it every ready node is eligible.
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := NewContext(cmd)
			if err != nil {
				return err
			}
			return runTick(ctx)
		},
	}
	cmd.Flags().String("task", "", "task id")
	cmd.Flags().String("graph", "", "graph id")
	cmd.Flags().StringSlice("allow", nil, "restrict dispatch to these node ids")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("graph")
	return cmd
}

func runTick(ctx *Context) error {
	taskID, _ := ctx.Command.Flags().GetString("task")
	graphID, _ := ctx.Command.Flags().GetString("graph")

	var allowed []string
	if ctx.Command.Flags().Changed("allow") {
		allowed, _ = ctx.Command.Flags().GetStringSlice("allow")
		if allowed == nil {
			allowed = []string{}
		}
	}

	store := ctx.OpenStore()
	driver, exec := ctx.NewAgent(store, nil)

	res, err := driver.TickGraph(ctx, taskID, graphID, allowed)
	if err != nil {
		return err
	}
	exec.Wait()

	logger.Info(ctx, "Tick complete",
		"taskId", taskID, "graphId", graphID, "dispatched", len(res.Events))
	for _, ev := range res.Events {
		fmt.Fprintln(ctx.Command.OutOrStdout(), ev.NodeID)
	}
	return nil
}
