package cmd

import (
	"github.com/spf13/cobra"

	"workloadgen/internal/version"
)

// Print version info and exit.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("workloadgen %s\n", version.Full())
			return nil
		},
	}
}
