package metrics

import (
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"workloadgen/internal/version"
)

const namespace = "workloadgen"

// Operation outcomes used as the status label.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

var (
	// Workload Metrics
	Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workload",
		Name:      "operations_total",
		Help:      "Operations attempted per target, operation and outcome.",
	}, []string{"target", "op", "status"})

	OperationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workload",
		Name:      "operation_seconds",
		Help:      "Backend call latency per target and operation.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"target", "op"})

	RecordsAffected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workload",
		Name:      "records_affected_total",
		Help:      "Records reported as modified or removed by the backend.",
	}, []string{"target", "op"})

	TrackedKeys = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "workload",
		Name:      "tracked_keys",
		Help:      "Identifiers currently held in the recent-key window.",
	}, []string{"target"})

	Rate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "workload",
		Name:      "rate",
		Help:      "Average successful inserts, updates and deletes per second since the worker started.",
	}, []string{"target"})

	WorkersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "workload",
		Name:      "workers_active",
		Help:      "Workers currently running.",
	})

	// HTTP Metrics
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Status API requests.",
	}, []string{"method", "path", "status"})

	HTTPLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_seconds",
		Help:      "Status API request latency.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"method", "path"})

	// System Metrics
	SystemInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "system",
		Name:      "info",
		Help:      "System information.",
	}, []string{"version", "commit", "build_date", "go_version"})
)

var (
	registry  *prometheus.Registry
	regOnce   sync.Once
	startTime time.Time
)

// Init creates the process registry. Safe to call more than once.
func Init() {
	regOnce.Do(func() {
		startTime = time.Now()
		registry = prometheus.NewRegistry()

		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		}, func() float64 { return time.Since(startTime).Seconds() })

		registry.MustRegister(
			Operations, OperationLatency, RecordsAffected, TrackedKeys, Rate, WorkersActive,
			HTTPRequests, HTTPLatency,
			SystemInfo, uptime,
		)
		SystemInfo.WithLabelValues(version.Version, version.Commit, version.Date, runtime.Version()).Set(1)
	})
}

// Registry returns the process registry, creating it on first use.
func Registry() *prometheus.Registry {
	Init()
	return registry
}

// MustRegister adds collectors owned by other packages, such as backend
// client counters. Already registered collectors are ignored.
func MustRegister(cs ...prometheus.Collector) {
	reg := Registry()
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			panic(err)
		}
	}
}

// RecordOperation records one backend call outcome.
func RecordOperation(target, op, status string, duration time.Duration) {
	Operations.WithLabelValues(target, op, status).Inc()
	if status != StatusSkipped {
		OperationLatency.WithLabelValues(target, op).Observe(duration.Seconds())
	}
}

// RecordAffected adds n to the affected-records counter when n is positive.
func RecordAffected(target, op string, n int64) {
	if n > 0 {
		RecordsAffected.WithLabelValues(target, op).Add(float64(n))
	}
}

// RecordHTTPRequest records one status API request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(method, path).Observe(duration.Seconds())
}
