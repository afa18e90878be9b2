// Package cmd holds the workloadgen command tree.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"workloadgen/internal/app"
	"workloadgen/internal/config"
	"workloadgen/internal/platform/logger"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

// RootCmd builds the command tree. Sub-commands share the --config flag.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workloadgen",
		Short: "workloadgen drives a synthetic insert/update/delete workload against a data store.",
		Long: `workloadgen drives a synthetic insert/update/delete workload against a data store.

One worker runs per target (database.collection, or topic for kafka) at a
fixed rate, choosing each operation from configured weights. Updates and
deletes act on recently inserted records.

Configuration is read from the file passed with --config and from
WORKLOADGEN_* environment variables, e.g. WORKLOADGEN_RPS=50.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	cmd.AddCommand(
		runCmd(),
		configCmd(),
		versionCmd(),
		diagnosticsCmd(),
	)
	return cmd
}

// Execute runs the command tree and maps the outcome to a process exit code.
func Execute() int {
	err := RootCmd().Execute()
	if err == nil {
		return exitOK
	}
	var cerr *app.ConfigError
	if errors.As(err, &cerr) {
		for _, p := range cerr.Problems {
			fmt.Fprintf(os.Stderr, "config error: %s\n", p)
		}
		return exitConfig
	}
	var lerr *loadError
	if errors.As(err, &lerr) {
		fmt.Fprintf(os.Stderr, "config error: %s\n", lerr.err)
		return exitConfig
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", err)
	return exitFailure
}

type loadError struct{ err error }

func (e *loadError) Error() string { return e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

// loadConfig reads --config and initialises the process logger from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &loadError{err: err}
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) {
	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: os.Stderr})
}
