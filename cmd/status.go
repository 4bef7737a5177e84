package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gantry-org/gantry/internal/core"
)

func cmdStatus() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored graphs, or the nodes of one graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := NewContext(cmd)
			if err != nil {
				return err
			}
			return runStatus(ctx)
		},
	}
	cmd.Flags().String("task", "", "task id")
	cmd.Flags().String("graph", "", "graph id")
	return cmd
}

func runStatus(ctx *Context) error {
	taskID, _ := ctx.Command.Flags().GetString("task")
	graphID, _ := ctx.Command.Flags().GetString("graph")
	store := ctx.OpenStore()

	if taskID == "" || graphID == "" {
		graphs, err := store.List(ctx)
		if err != nil {
			return err
		}
		renderGraphList(ctx, graphs)
		return nil
	}

	g, err := store.Get(ctx, taskID, graphID)
	if err != nil {
		return err
	}
	renderGraph(ctx, g)
	return nil
}

func renderGraphList(ctx *Context, graphs []*core.Graph) {
	t := table.NewWriter()
	t.SetOutputMirror(ctx.Command.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Task", "Graph", "Version", "Nodes", "Running", "Complete"})
	for _, g := range graphs {
		t.AppendRow(table.Row{
			g.TaskID, g.ID, g.Version, len(g.Nodes), g.RunningWorkCount(), core.IsComplete(g),
		})
	}
	t.Render()
}

func renderGraph(ctx *Context, g *core.Graph) {
	out := ctx.Command.OutOrStdout()
	fmt.Fprintf(out, "Task: %s  Graph: %s  Version: %d  Complete: %v\n",
		g.TaskID, g.ID, g.Version, core.IsComplete(g))

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Node", "Type", "Status", "Deps"})
	for _, id := range g.NodeIDs() {
		node := g.Nodes[id]
		t.AppendRow(table.Row{
			node.ID, node.Type.String(), coloredStatus(node.Status), strings.Join(node.Deps, ", "),
		})
	}
	t.Render()
}

func coloredStatus(status core.NodeStatus) string {
	switch status {
	case core.NodeDone:
		return color.GreenString(status.String())
	case core.NodeFailed:
		return color.RedString(status.String())
	case core.NodeRunning:
		return color.CyanString(status.String())
	case core.NodeBlocked:
		return color.YellowString(status.String())
	case core.NodeAwaitingHuman:
		return color.MagentaString(status.String())
	default:
		return status.String()
	}
}
