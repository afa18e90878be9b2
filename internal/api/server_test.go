package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workloadgen/internal/config"
	"workloadgen/internal/workload"
	"workloadgen/pkg/pipeline"
)

type staticWorkers []workload.Snapshot

func (s staticWorkers) Snapshots() []workload.Snapshot { return s }

type staticBreakers map[string]pipeline.CircuitStats

func (b staticBreakers) Breakers() map[string]pipeline.CircuitStats { return b }

func testServer(opts ...Option) *Server {
	cfg := &config.Config{Mode: config.ModeBenchmark}
	cfg.Backend.Kind = config.BackendRedis
	cfg.Backend.Redis.Addr = "localhost:6379"
	cfg.Backend.Redis.Password = "hunter2"
	cfg.Status.Listen = "127.0.0.1:0"
	workers := staticWorkers{
		{Target: "shop.orders", Inserted: 10, Updated: 2, Running: true, Rate: 5},
		{Target: "shop.users", Inserted: 4, Rate: 2},
	}
	return NewServer(cfg, workers, opts...)
}

func do(t *testing.T, s *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func TestHealthCountsRunningWorkers(t *testing.T) {
	resp, body := do(t, testServer(), http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "ok", got["status"])
	assert.EqualValues(t, 1, got["workers_active"])
}

func TestWorkersListIncludesTotal(t *testing.T) {
	resp, body := do(t, testServer(), http.MethodGet, "/api/v1/workers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Items []workload.Snapshot `json:"items"`
		Total workload.Snapshot   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Len(t, got.Items, 2)
	assert.EqualValues(t, 14, got.Total.Inserted)
	assert.InDelta(t, 7.0, got.Total.Rate, 1e-9)
}

func TestWorkerByTarget(t *testing.T) {
	s := testServer()
	resp, body := do(t, s, http.MethodGet, "/api/v1/workers/shop.orders", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap workload.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, "shop.orders", snap.Target)

	resp, body = do(t, s, http.MethodGet, "/api/v1/workers/nope.none", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "unknown_target")
}

func TestConfigIsRedacted(t *testing.T) {
	resp, body := do(t, testServer(), http.MethodGet, "/api/v1/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "hunter2")
	assert.Contains(t, string(body), "<redacted>")

	resp, _ = do(t, testServer(), http.MethodGet, "/api/v1/config?format=toml", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBreakers(t *testing.T) {
	resp, _ := do(t, testServer(), http.MethodGet, "/api/v1/breakers", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	s := testServer(WithBreakers(staticBreakers{"shop.orders": {Name: "shop.orders", State: "open"}}))
	resp, body := do(t, s, http.MethodGet, "/api/v1/breakers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "open")
}

func TestLogLevel(t *testing.T) {
	s := testServer()
	resp, _ := do(t, s, http.MethodPatch, "/api/v1/admin/loglevel", `{"level":"debug"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := do(t, s, http.MethodPatch, "/api/v1/admin/loglevel", `{"level":"loud"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_level")
	do(t, s, http.MethodPatch, "/api/v1/admin/loglevel", `{"level":"info"}`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer()
	do(t, s, http.MethodGet, "/api/v1/health", "")
	resp, body := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "workloadgen_http_requests_total")
}

func TestMetricPathCollapsesTargets(t *testing.T) {
	assert.Equal(t, "/api/v1/workers/{target}", metricPath("/api/v1/workers/a.b"))
	assert.Equal(t, "/api/v1/health", metricPath("/api/v1/health"))
	assert.Equal(t, "other", metricPath("/wp-admin/setup.php"))
	assert.Equal(t, "other", metricPath("/api/v1/workers/a/b"))
}

func TestUnknownPathsShareOneLabel(t *testing.T) {
	s := testServer()
	do(t, s, http.MethodGet, "/no/such/page-1", "")
	do(t, s, http.MethodGet, "/no/such/page-2", "")
	resp, body := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "page-1")
	assert.Contains(t, string(body), `path="other"`)
}
