package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"workloadgen/internal/diagnostics"
	"workloadgen/internal/platform/logger"
	"workloadgen/internal/workload"
)

func (s *Server) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/workers", s.handleWorkers).Methods("GET")
	v1.HandleFunc("/workers/{target}", s.handleWorker).Methods("GET")
	v1.HandleFunc("/config", s.handleConfig).Methods("GET")
	v1.HandleFunc("/diagnostics", s.handleDiagnostics).Methods("GET")
	v1.HandleFunc("/breakers", s.handleBreakers).Methods("GET")
	v1.HandleFunc("/admin/loglevel", s.handleLogLevel).Methods("PATCH")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		structuredError(w, r, http.StatusNotFound, "not_found", "no such endpoint")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func structuredError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": code, "requestId": r.Header.Get("X-Request-Id")})
}

func (s *Server) snapshots() []workload.Snapshot {
	if s.workers == nil {
		return nil
	}
	return s.workers.Snapshots()
}

func (s *Server) handleWorkers(w http.ResponseWriter, _ *http.Request) {
	snaps := s.snapshots()
	if snaps == nil {
		snaps = []workload.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": snaps,
		"total": workload.Totals(snaps),
	})
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["target"]
	for _, snap := range s.snapshots() {
		if snap.Target == target {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	structuredError(w, r, http.StatusNotFound, "unknown_target", "no worker for target "+target)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	out, err := s.cfg.MarshalEffective(format)
	if err != nil {
		structuredError(w, r, http.StatusBadRequest, "invalid_format", err.Error())
		return
	}
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/yaml")
	}
	_, _ = w.Write(out)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, diagnostics.Collect(s.cfg, false))
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	if s.breakers == nil {
		structuredError(w, r, http.StatusNotFound, "breakers_disabled", "circuit breakers are not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.breakers.Breakers())
}

func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Level string `json:"level"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	switch body.Level {
	case "debug", "info", "warn", "error":
		logger.SetLevel(body.Level)
		logger.Slog().Info("log level changed", "level", body.Level)
		writeJSON(w, http.StatusOK, map[string]any{"level": body.Level})
	default:
		structuredError(w, r, http.StatusBadRequest, "invalid_level", "level must be debug|info|warn|error")
	}
}
