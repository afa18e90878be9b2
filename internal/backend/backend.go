// Package backend builds the configured data store client.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"

	"workloadgen/internal/backend/kafka"
	"workloadgen/internal/backend/memory"
	"workloadgen/internal/backend/mongo"
	"workloadgen/internal/backend/postgres"
	"workloadgen/internal/backend/redis"
	"workloadgen/internal/config"
	"workloadgen/internal/platform/logger"
	"workloadgen/internal/workload"
	"workloadgen/pkg/pipeline"
)

// Client is a workload backend with connection lifecycle.
type Client interface {
	workload.Backend
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open builds the backend named by cfg.Backend.Kind and waits until it
// answers Ping, retrying up to connect_attempts times one second apart.
func Open(ctx context.Context, cfg *config.Config) (Client, error) {
	c, err := build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bc := cfg.Backend
	attempts := bc.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	log := logger.Slog().With("backend", bc.Kind)
	err = retry.Do(
		func() error {
			pctx, cancel := context.WithTimeout(ctx, connectTimeout(bc))
			defer cancel()
			return c.Ping(pctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("backend not reachable, retrying", "attempt", n+1, "of", attempts, "err", err)
		}),
	)
	if err != nil {
		_ = c.Close(context.Background())
		return nil, fmt.Errorf("connect %s backend: %w", bc.Kind, err)
	}
	log.Info("backend connected")

	if bc.CircuitBreaker.Enabled {
		c = Guard(c, pipeline.BreakerConfig{
			MaxFailures: uint32(bc.CircuitBreaker.MaxFailures),
			Cooldown:    bc.CircuitBreaker.Timeout,
			Successes:   uint32(bc.CircuitBreaker.Successes),
		})
	}
	return c, nil
}

func connectTimeout(bc config.BackendConfig) time.Duration {
	if bc.ConnectTimeout > 0 {
		return bc.ConnectTimeout
	}
	return 10 * time.Second
}

func build(ctx context.Context, cfg *config.Config) (Client, error) {
	bc := cfg.Backend
	switch bc.Kind {
	case config.BackendMongo:
		return mongo.New(ctx, bc.Mongo.URI, connectTimeout(bc))
	case config.BackendKafka:
		return kafka.New(kafka.Config{Brokers: bc.Kafka.Brokers, ClientID: bc.Kafka.ClientID, Linger: bc.Kafka.Linger})
	case config.BackendRedis:
		return redis.New(redis.Config{
			Addr:        bc.Redis.Addr,
			Password:    bc.Redis.Password,
			DB:          bc.Redis.DB,
			DialTimeout: connectTimeout(bc),
		}), nil
	case config.BackendPostgres:
		return postgres.New(bc.Postgres.DSN)
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", bc.Kind)
	}
}
