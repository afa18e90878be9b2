package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"workloadgen/internal/app"
	"workloadgen/internal/config"
	"workloadgen/internal/platform/logger"
)

// Start workers and block until the run ends.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the workload until the benchmark duration passes or a signal arrives.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd.Flags(), cfg); err != nil {
				return err
			}
			initLogger(cfg)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sum, err := app.Run(ctx, cfg)
			if err != nil {
				return err
			}
			if summaryJSON, _ := cmd.Flags().GetBool("summary-json"); summaryJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			return nil
		},
	}
	cmd.Flags().String("mode", "", "Run mode: benchmark|long_running")
	cmd.Flags().Int("duration", 0, "Benchmark duration in seconds")
	cmd.Flags().Float64("rps", 0, "Operations per second per worker")
	cmd.Flags().String("backend", "", "Backend kind: mongo|kafka|redis|postgres|memory")
	cmd.Flags().Int("size", 0, "Approximate record size in bytes")
	cmd.Flags().Int64("seed", 0, "Random seed, 0 picks one from the clock")
	cmd.Flags().Bool("status", false, "Serve the status API on status.listen")
	cmd.Flags().Bool("summary-json", false, "Print the final summary as JSON on stdout")
	return cmd
}

// applyRunFlags copies explicitly set flags over file and env values.
func applyRunFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	if fs.Changed("mode") {
		cfg.Mode, err = fs.GetString("mode")
		if err != nil {
			return err
		}
	}
	if fs.Changed("duration") {
		cfg.DurationSeconds, err = fs.GetInt("duration")
		if err != nil {
			return err
		}
	}
	if fs.Changed("rps") {
		cfg.RPS, err = fs.GetFloat64("rps")
		if err != nil {
			return err
		}
	}
	if fs.Changed("backend") {
		cfg.Backend.Kind, err = fs.GetString("backend")
		if err != nil {
			return err
		}
	}
	if fs.Changed("size") {
		cfg.DocumentSize, err = fs.GetInt("size")
		if err != nil {
			return err
		}
	}
	if fs.Changed("seed") {
		cfg.Seed, err = fs.GetInt64("seed")
		if err != nil {
			return err
		}
	}
	if fs.Changed("status") {
		cfg.Status.Enabled, err = fs.GetBool("status")
		if err != nil {
			return err
		}
	}
	return nil
}
