// Package app wires configuration, backend, workers and the status server
// into a single run.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"workloadgen/internal/api"
	"workloadgen/internal/backend"
	"workloadgen/internal/config"
	"workloadgen/internal/diagnostics/selfcheck"
	"workloadgen/internal/generator"
	"workloadgen/internal/metrics"
	"workloadgen/internal/platform/logger"
	"workloadgen/internal/secrets"
	"workloadgen/internal/secrets/vault"
	"workloadgen/internal/telemetry"
	"workloadgen/internal/version"
	"workloadgen/internal/workload"
)

// ConfigError carries every static validation problem found in a config.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Prepare resolves secret references and validates cfg. Warnings are logged.
func Prepare(ctx context.Context, cfg *config.Config) (*vault.Client, error) {
	vc, err := vault.NewClient(cfg.Secrets.Vault)
	if err != nil {
		return nil, err
	}
	if vc != nil {
		n, err := secrets.ReplacePlaceholders(ctx, cfg, vc)
		if err != nil {
			return nil, fmt.Errorf("resolve secrets: %w", err)
		}
		logger.Slog().Info("secret references resolved", "count", n)
	}
	errs, warns := cfg.Validate()
	for _, w := range warns {
		logger.Slog().Warn("config warning", "warning", w)
	}
	if len(errs) > 0 {
		return nil, &ConfigError{Problems: errs}
	}
	return vc, nil
}

// Run executes one workload run and returns its summary.
func Run(ctx context.Context, cfg *config.Config) (workload.Summary, error) {
	log := logger.Slog()
	log.Info("starting workloadgen", "version", version.Version, "commit", version.Commit, "mode", cfg.Mode, "backend", cfg.Backend.Kind)
	metrics.Init()

	vc, err := Prepare(ctx, cfg)
	if err != nil {
		return workload.Summary{}, err
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, telemetry.RunAttributes(cfg)...)
	if err != nil {
		return workload.Summary{}, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown failed", "err", err)
		}
	}()

	client, err := backend.Open(ctx, cfg)
	if err != nil {
		return workload.Summary{}, err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Close(cctx); err != nil {
			log.Warn("backend close failed", "err", err)
		}
	}()

	deps := selfcheck.Dependencies{Backend: client}
	if vc != nil {
		deps.Vault = vc
	}
	if err := selfcheck.Run(ctx, cfg, deps); err != nil {
		return workload.Summary{}, fmt.Errorf("startup checks: %w", err)
	}

	workers, err := BuildWorkers(cfg, client)
	if err != nil {
		return workload.Summary{}, err
	}
	coord, err := workload.NewCoordinator(workload.CoordinatorConfig{
		Mode:           cfg.Mode,
		Duration:       cfg.Duration(),
		ReportInterval: cfg.ReportInterval,
	}, workers)
	if err != nil {
		return workload.Summary{}, err
	}

	if cfg.Status.Enabled {
		var opts []api.Option
		if b, ok := client.(api.BreakerSource); ok {
			opts = append(opts, api.WithBreakers(b))
		}
		srv := api.NewServer(cfg, coord, opts...)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("status server error", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Warn("status server shutdown failed", "err", err)
			}
		}()
	}

	sum, err := coord.Run(ctx)
	logSummary(sum)
	return sum, err
}

// BuildWorkers creates one worker per configured target. A zero seed is
// replaced by the current time; worker i is seeded with seed+i.
func BuildWorkers(cfg *config.Config, b workload.Backend) ([]*workload.Worker, error) {
	names := cfg.TargetNames()
	if len(names) == 0 {
		return nil, errors.New("no targets configured")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	workers := make([]*workload.Worker, 0, len(names))
	for i, name := range names {
		target := workload.ParseTarget(name)
		if cfg.Backend.Kind == config.BackendKafka {
			target = workload.Target{Name: name}
		}
		wseed := seed + int64(i)
		w, err := workload.NewWorker(workload.WorkerConfig{
			Target:         target,
			Backend:        b,
			Source:         generator.ForTarget(cfg.Backend.Kind, target, rand.New(rand.NewSource(wseed))),
			Spec:           workload.OperationSpec(cfg.Operations),
			RPS:            cfg.RPS,
			RecordSize:     cfg.DocumentSize,
			WindowCapacity: cfg.Window.Capacity,
			SkewExponent:   cfg.Window.SkewExponent,
			Pacing:         cfg.Pacing,
			Seed:           wseed,
			OpTimeout:      cfg.Backend.OpTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", name, err)
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func logSummary(sum workload.Summary) {
	log := logger.Slog()
	for _, s := range sum.Workers {
		log.Info("final", "target", s.Target, "inserted", s.Inserted, "updated", s.Updated,
			"deleted", s.Deleted, "failed", s.Failed, "skipped", s.Skipped, "rate", s.Rate)
	}
	t := sum.Total
	log.Info("run complete", "mode", sum.Mode, "elapsed", sum.Elapsed.Round(time.Millisecond),
		"workers", len(sum.Workers), "inserted", t.Inserted, "updated", t.Updated,
		"deleted", t.Deleted, "failed", t.Failed, "rate", t.Rate)
}
