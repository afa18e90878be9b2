package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"workloadgen/internal/config"
)

func TestApplyRunFlagsOnlyOverridesChanged(t *testing.T) {
	c := runCmd()
	if err := c.Flags().Parse([]string{"--rps", "25", "--backend", "memory"}); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Mode: config.ModeLongRunning, RPS: 10, DocumentSize: 512}
	if err := applyRunFlags(c.Flags(), cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.RPS != 25 || cfg.Backend.Kind != "memory" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Mode != config.ModeLongRunning || cfg.DocumentSize != 512 {
		t.Fatalf("unset flags overwrote config: mode=%s size=%d", cfg.Mode, cfg.DocumentSize)
	}
}

func TestExecuteConfigErrorsExitTwo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	body := "rps: 0\noperations:\n  insert: 0.5\nbackend:\n  kind: memory\ndb_collection_map:\n  db: [c]\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	saved := os.Args
	defer func() { os.Args = saved }()
	os.Args = []string{"workloadgen", "config", "validate", "--config", path}
	if code := Execute(); code != exitConfig {
		t.Fatalf("exit code = %d, want %d", code, exitConfig)
	}
}

func TestVersionCommand(t *testing.T) {
	root := RootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "workloadgen ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestConfigShowRedacts(t *testing.T) {
	t.Setenv("WORKLOADGEN_BACKEND_REDIS_PASSWORD", "hunter2")
	root := RootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "hunter2") {
		t.Fatalf("secret leaked: %s", out.String())
	}
}
