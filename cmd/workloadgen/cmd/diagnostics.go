package cmd

import (
	"github.com/spf13/cobra"

	"workloadgen/internal/diagnostics"
)

// Print build, runtime and workload information for support requests.
func diagnosticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Print build, runtime and configured workload information.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			includeEnv, _ := cmd.Flags().GetBool("env")
			return diagnostics.Print(cmd.OutOrStdout(), diagnostics.Collect(cfg, includeEnv), format)
		},
	}
	cmd.Flags().String("format", "text", "Output format: text|json")
	cmd.Flags().Bool("env", false, "Include non-secret process environment variables")
	return cmd
}
