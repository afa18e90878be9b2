package diagnostics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"time"

	"workloadgen/internal/config"
	"workloadgen/internal/version"
)

// SystemInfo contains diagnostic information about the process.
type SystemInfo struct {
	Version     VersionInfo     `json:"version"`
	Runtime     RuntimeInfo     `json:"runtime"`
	Environment EnvironmentInfo `json:"environment"`
	Workload    WorkloadSummary `json:"workload"`
	Timestamp   string          `json:"timestamp"`
}

type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

type RuntimeInfo struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	AllocBytes   uint64 `json:"alloc_bytes"`
	SysBytes     uint64 `json:"sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

type EnvironmentInfo struct {
	Hostname string            `json:"hostname"`
	WorkDir  string            `json:"work_dir"`
	EnvVars  map[string]string `json:"env_vars,omitempty"`
}

// WorkloadSummary describes the configured run without any credentials.
type WorkloadSummary struct {
	Mode          string             `json:"mode"`
	Backend       string             `json:"backend"`
	Targets       int                `json:"targets"`
	RPS           float64            `json:"rps"`
	DocumentSize  int                `json:"document_size"`
	Pacing        string             `json:"pacing"`
	Interval      string             `json:"interval"`
	Operations    map[string]float64 `json:"operations"`
	StatusListen  string             `json:"status_listen,omitempty"`
	VaultEnabled  bool               `json:"vault_enabled"`
	TracingTarget string             `json:"tracing_endpoint,omitempty"`
}

// Collect gathers diagnostic information. includeEnv adds an allow-listed set
// of environment variables.
func Collect(cfg *config.Config, includeEnv bool) SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	hostname, _ := os.Hostname()
	workdir, _ := os.Getwd()

	info := SystemInfo{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version: VersionInfo{
			Version:   version.Version,
			Commit:    version.Commit,
			BuildDate: version.Date,
			GoVersion: runtime.Version(),
		},
		Runtime: RuntimeInfo{
			OS:           runtime.GOOS,
			Arch:         runtime.GOARCH,
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
			AllocBytes:   m.Alloc,
			SysBytes:     m.Sys,
			NumGC:        m.NumGC,
		},
		Environment: EnvironmentInfo{Hostname: hostname, WorkDir: workdir},
	}
	if includeEnv {
		info.Environment.EnvVars = safeEnvVars()
	}
	if cfg != nil {
		info.Workload = WorkloadSummary{
			Mode:          cfg.Mode,
			Backend:       cfg.Backend.Kind,
			Targets:       len(cfg.TargetNames()),
			RPS:           cfg.RPS,
			DocumentSize:  cfg.DocumentSize,
			Pacing:        cfg.Pacing,
			Interval:      cfg.Interval().String(),
			Operations:    cfg.Operations,
			VaultEnabled:  cfg.Secrets.Vault.Enabled,
			TracingTarget: cfg.Telemetry.OTLP.Endpoint,
		}
		if cfg.Status.Enabled {
			info.Workload.StatusListen = cfg.Status.Listen
		}
	}
	return info
}

var safeKeys = []string{
	"HOSTNAME", "USER", "LANG", "TZ",
	"GOMAXPROCS", "GOGC", "GOMEMLIMIT", "GODEBUG",
}

func safeEnvVars() map[string]string {
	out := make(map[string]string)
	for _, k := range safeKeys {
		if v := os.Getenv(k); v != "" {
			out[k] = v
		}
	}
	return out
}

// Print writes info to w as "json" or "text".
func Print(w io.Writer, info SystemInfo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "text", "":
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	fmt.Fprintf(w, "workloadgen diagnostics\n=======================\n\n")
	fmt.Fprintf(w, "Version:    %s (commit %s, built %s, %s)\n", info.Version.Version, info.Version.Commit, info.Version.BuildDate, info.Version.GoVersion)
	fmt.Fprintf(w, "Runtime:    %s/%s, %d CPUs, %d goroutines\n", info.Runtime.OS, info.Runtime.Arch, info.Runtime.NumCPU, info.Runtime.NumGoroutine)
	fmt.Fprintf(w, "Memory:     %d MB allocated, %d MB system, %d GC cycles\n", info.Runtime.AllocBytes/1024/1024, info.Runtime.SysBytes/1024/1024, info.Runtime.NumGC)
	fmt.Fprintf(w, "Host:       %s (%s)\n", info.Environment.Hostname, info.Environment.WorkDir)
	if len(info.Environment.EnvVars) > 0 {
		keys := make([]string, 0, len(info.Environment.EnvVars))
		for k := range info.Environment.EnvVars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s=%s\n", k, info.Environment.EnvVars[k])
		}
	}

	wl := info.Workload
	fmt.Fprintf(w, "\nWorkload:\n")
	fmt.Fprintf(w, "  Mode:       %s\n", wl.Mode)
	fmt.Fprintf(w, "  Backend:    %s (%d targets)\n", wl.Backend, wl.Targets)
	fmt.Fprintf(w, "  Rate:       %.2f/s per target, %s pacing every %s\n", wl.RPS, wl.Pacing, wl.Interval)
	fmt.Fprintf(w, "  Doc size:   %d bytes\n", wl.DocumentSize)
	ops := make([]string, 0, len(wl.Operations))
	for op := range wl.Operations {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(w, "  %-10s  %.3f\n", op+":", wl.Operations[op])
	}
	fmt.Fprintf(w, "  Vault:      %v\n", wl.VaultEnabled)
	if wl.StatusListen != "" {
		fmt.Fprintf(w, "  Status:     %s\n", wl.StatusListen)
	}
	if wl.TracingTarget != "" {
		fmt.Fprintf(w, "  Tracing:    %s\n", wl.TracingTarget)
	}
	return nil
}
