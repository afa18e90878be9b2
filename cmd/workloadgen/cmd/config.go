package cmd

import (
	"github.com/spf13/cobra"

	"workloadgen/internal/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration.",
	}
	cmd.AddCommand(configShowCmd(), configValidateCmd())
	return cmd
}

// Print the effective configuration with secrets redacted.
func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			out, err := cfg.MarshalEffective(format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().String("format", "yaml", "Output format: yaml|json")
	return cmd
}

// Resolve secrets and run static validation without touching the backend.
func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			initLogger(cfg)
			if _, err := app.Prepare(cmd.Context(), cfg); err != nil {
				return err
			}
			cmd.Println("configuration ok")
			return nil
		},
	}
}
