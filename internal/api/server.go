// Package api serves live run status, metrics and the effective config.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"workloadgen/internal/config"
	"workloadgen/internal/metrics"
	"workloadgen/internal/platform/logger"
	"workloadgen/internal/version"
	"workloadgen/internal/workload"
	"workloadgen/pkg/pipeline"
	"workloadgen/pkg/tls"
)

// SnapshotSource exposes live worker counters.
type SnapshotSource interface {
	Snapshots() []workload.Snapshot
}

// BreakerSource is implemented by backends guarded by circuit breakers.
type BreakerSource interface {
	Breakers() map[string]pipeline.CircuitStats
}

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	workers  SnapshotSource
	breakers BreakerSource
	started  time.Time
}

// Option customises a Server.
type Option func(*Server)

// WithBreakers exposes breaker state on /api/v1/breakers.
func WithBreakers(b BreakerSource) Option {
	return func(s *Server) { s.breakers = b }
}

func NewServer(cfg *config.Config, workers SnapshotSource, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	s := &Server{app: app, cfg: cfg, workers: workers, started: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	metrics.Init()
	log := logger.Slog()

	// Request id, panic recovery and request metrics
	app.Use(func(c *fiber.Ctx) (err error) {
		start := time.Now()
		rid := c.Get("X-Request-Id")
		if rid == "" {
			rid = fmt.Sprintf("req-%d", start.UnixNano())
		}
		c.Set("X-Request-Id", rid)
		path := metricPath(c.Path())
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic", "err", rec, "requestId", rid)
				err = c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error", "requestId": rid})
			}
			status := c.Response().StatusCode()
			metrics.RecordHTTPRequest(c.Method(), path, status, time.Since(start))
			log.Debug("req", "method", c.Method(), "path", c.Path(), "status", status, "requestId", rid)
		}()
		return c.Next()
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
		Registry:      metrics.Registry(),
	})))
	app.Get("/api/v1/health", s.handleHealth)
	app.Get("/api/v1/version", func(c *fiber.Ctx) error { return c.JSON(version.Current()) })
	app.Get("/live", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	app.Get("/ready", func(c *fiber.Ctx) error {
		if s.workers == nil {
			return c.SendStatus(http.StatusServiceUnavailable)
		}
		return c.SendStatus(http.StatusOK)
	})

	router := mux.NewRouter()
	s.RegisterRoutes(router)
	app.Use("/api", adaptor.HTTPHandler(router))
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) handleHealth(c *fiber.Ctx) error {
	active := 0
	if s.workers != nil {
		for _, snap := range s.workers.Snapshots() {
			if snap.Running {
				active++
			}
		}
	}
	return c.JSON(fiber.Map{
		"status":         "ok",
		"workers_active": active,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"build":          version.Current(),
	})
}

// Start listens on status.listen until Shutdown. With status.tls enabled a
// self-signed pair is generated first when the configured files are missing.
func (s *Server) Start() error {
	addr := s.cfg.Status.Listen
	log := logger.Slog()
	var err error
	if tc := s.cfg.Status.TLS; tc.Enabled {
		generated, gerr := tls.EnsurePairExists(tc.CertFile, tc.KeyFile, tc.Hosts, 0)
		if gerr != nil {
			return fmt.Errorf("status tls: %w", gerr)
		}
		if generated {
			log.Warn("generated self-signed status certificate", "cert", tc.CertFile, "key", tc.KeyFile)
		}
		log.Info("status server listening", "addr", addr, "tls", true)
		err = s.app.ListenTLS(addr, tc.CertFile, tc.KeyFile)
	} else {
		log.Info("status server listening", "addr", addr)
		err = s.app.Listen(addr)
	}
	if err != nil && !strings.Contains(err.Error(), "server closed") {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// routeLabels lists every served path. Anything else is labelled "other" so
// the request label set stays bounded.
var routeLabels = map[string]bool{
	"/metrics":               true,
	"/live":                  true,
	"/ready":                 true,
	"/api/v1/health":         true,
	"/api/v1/version":        true,
	"/api/v1/workers":        true,
	"/api/v1/config":         true,
	"/api/v1/diagnostics":    true,
	"/api/v1/breakers":       true,
	"/api/v1/admin/loglevel": true,
}

func metricPath(p string) string {
	if rest, ok := strings.CutPrefix(p, "/api/v1/workers/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/workers/{target}"
	}
	if routeLabels[p] {
		return p
	}
	return "other"
}
