package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantry-org/gantry/internal/build"
)

func cmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.Version)
		},
	}
}
