package selfcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workloadgen/internal/config"
)

// Dependencies surfaces optional clients required for checks.
type Dependencies struct {
	Vault   interface{ HealthCheck(context.Context) error }
	Backend interface{ Ping(context.Context) error }
}

const checkTimeout = 10 * time.Second

// Run validates startup dependencies before any worker starts. All checks
// run; their failures are joined.
func Run(ctx context.Context, cfg *config.Config, deps Dependencies) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	var errs []error
	if cfg.Secrets.Vault.Enabled {
		if deps.Vault == nil {
			errs = append(errs, errors.New("vault enabled but no client available for health check"))
		} else if err := check(ctx, deps.Vault.HealthCheck); err != nil {
			errs = append(errs, fmt.Errorf("vault health check failed: %w", err))
		}
	}
	if deps.Backend == nil {
		errs = append(errs, fmt.Errorf("%s backend not initialised", cfg.Backend.Kind))
	} else if err := check(ctx, deps.Backend.Ping); err != nil {
		errs = append(errs, fmt.Errorf("%s backend ping failed: %w", cfg.Backend.Kind, err))
	}
	if len(cfg.TargetNames()) == 0 {
		errs = append(errs, errors.New("no targets configured"))
	}
	return errors.Join(errs...)
}

func check(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return fn(ctx)
}
