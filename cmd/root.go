// Package cmd implements the gantry command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantry-org/gantry/internal/build"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           build.Slug,
		Short:         "Execution-graph scheduler for multi-stage agent tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path")
	cmd.PersistentFlags().Bool("quiet", false, "suppress log output to stderr")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	cmd.AddCommand(
		cmdStart(),
		cmdSubmit(),
		cmdTick(),
		cmdStatus(),
		cmdGate(),
		cmdVersion(),
	)
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
