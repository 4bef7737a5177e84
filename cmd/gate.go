package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantry-org/gantry/internal/agent"
)

func cmdGate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Resolve awaiting gates",
	}
	cmd.AddCommand(
		cmdGateResolve("approve", "Approve an awaiting gate", true),
		cmdGateResolve("reject", "Reject an awaiting gate", false),
	)
	return cmd
}

func cmdGateResolve(use, short string, approved bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := NewContext(cmd)
			if err != nil {
				return err
			}
			return runGateResolve(ctx, approved)
		},
	}
	cmd.Flags().String("task", "", "task id")
	cmd.Flags().String("graph", "", "graph id")
	cmd.Flags().String("node", "", "gate node id")
	cmd.Flags().String("feedback", "", "reviewer feedback stored on the gate")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("graph")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

func runGateResolve(ctx *Context, approved bool) error {
	taskID, _ := ctx.Command.Flags().GetString("task")
	graphID, _ := ctx.Command.Flags().GetString("graph")
	nodeID, _ := ctx.Command.Flags().GetString("node")
	feedback, _ := ctx.Command.Flags().GetString("feedback")

	store := ctx.OpenStore()
	driver, exec := ctx.NewAgent(store, nil)

	g, err := store.Get(ctx, taskID, graphID)
	if err != nil {
		return err
	}

	version, err := driver.ResolveGate(ctx, taskID, graphID, nodeID, agent.GateResolution{
		Approved:       approved,
		Feedback:       feedback,
		IfMatchVersion: g.Version,
	})
	if err != nil {
		return err
	}
	exec.Wait()

	fmt.Fprintf(ctx.Command.OutOrStdout(), "gate %s resolved, graph version %d\n", nodeID, version)
	return nil
}
