package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workloadgen/internal/backend/memory"
	"workloadgen/internal/config"
	"workloadgen/internal/workload"
	"workloadgen/pkg/pipeline"
)

func testConfig(kind string) *config.Config {
	cfg := &config.Config{}
	cfg.Backend.Kind = kind
	cfg.Backend.ConnectAttempts = 1
	cfg.Backend.ConnectTimeout = 200 * time.Millisecond
	return cfg
}

func TestOpenMemory(t *testing.T) {
	c, err := Open(context.Background(), testConfig(config.BackendMemory))
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, c)
	require.NoError(t, c.Close(context.Background()))
}

func TestOpenRedis(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	cfg := testConfig(config.BackendRedis)
	cfg.Backend.Redis.Addr = s.Addr()
	c, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close(context.Background())

	id, err := c.Insert(context.Background(), workload.Target{Namespace: "db", Name: "c"}, workload.Record{Fields: map[string]any{"a": "b"}})
	require.NoError(t, err)
	assert.True(t, s.Exists("db:c:"+id))
}

func TestOpenRetriesThenFails(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	addr := s.Addr()
	s.Close()

	cfg := testConfig(config.BackendRedis)
	cfg.Backend.Redis.Addr = addr
	cfg.Backend.ConnectAttempts = 2

	start := time.Now()
	_, err = Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect redis backend")
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "expected one retry delay")
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), testConfig("cassandra"))
	assert.Error(t, err)
}

func TestOpenWithBreaker(t *testing.T) {
	cfg := testConfig(config.BackendMemory)
	cfg.Backend.CircuitBreaker.Enabled = true
	cfg.Backend.CircuitBreaker.MaxFailures = 3
	c, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &guarded{}, c)
}

type failingBackend struct {
	memory.Backend
	calls int
}

func (f *failingBackend) Insert(context.Context, workload.Target, workload.Record) (workload.ID, error) {
	f.calls++
	return "", errors.New("unavailable")
}

func TestGuardOpensPerTarget(t *testing.T) {
	ctx := context.Background()
	inner := &failingBackend{}
	g := Guard(inner, pipeline.BreakerConfig{MaxFailures: 2, Cooldown: time.Hour})
	bad := workload.Target{Namespace: "db", Name: "bad"}

	for i := 0; i < 2; i++ {
		_, err := g.Insert(ctx, bad, workload.Record{})
		require.Error(t, err)
	}
	_, err := g.Insert(ctx, bad, workload.Record{})
	assert.ErrorIs(t, err, pipeline.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls, "open circuit must not reach the backend")

	// other targets have their own breaker
	n, err := g.DeleteByID(ctx, workload.Target{Namespace: "db", Name: "good"}, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)

	stats := g.(*guarded).Breakers()
	assert.Equal(t, pipeline.StateOpen.String(), stats["db.bad"].State)
	assert.Equal(t, pipeline.StateClosed.String(), stats["db.good"].State)
}
