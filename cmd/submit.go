package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantry-org/gantry/internal/core"
	"github.com/gantry-org/gantry/internal/logger"
)

func cmdSubmit() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <graph-spec.yaml>",
		Short: "Submit a graph spec to the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := NewContext(cmd)
			if err != nil {
				return err
			}
			return runSubmit(ctx, args[0])
		},
	}
	cmd.Flags().String("task", "", "override the task id from the spec")
	return cmd
}

func runSubmit(ctx *Context, path string) error {
	g, err := core.LoadFile(path)
	if err != nil {
		return err
	}
	if taskID, _ := ctx.Command.Flags().GetString("task"); taskID != "" {
		g.TaskID = taskID
	}

	store := ctx.OpenStore()
	if err := store.Create(ctx, g); err != nil {
		return fmt.Errorf("failed to store graph: %w", err)
	}

	logger.Info(ctx, "Graph submitted",
		"taskId", g.TaskID, "graphId", g.ID, "nodes", len(g.Nodes))
	fmt.Fprintf(ctx.Command.OutOrStdout(), "%s/%s\n", g.TaskID, g.ID)
	return nil
}
