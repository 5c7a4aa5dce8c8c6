// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"os"
	"path/filepath"
	"testing"
)

// isolateConfig points XDG_CONFIG_HOME at a fresh temp dir so the
// developer's own config file cannot leak into the test.
func isolateConfig(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("BUDSCTL_LOG_LEVEL", "")
	t.Setenv("BUDSCTL_PLUGIN_DIR", "")
	t.Setenv("BUDSCTL_METRICS_ADDR", "")
	return tmp
}

func writeConfig(t *testing.T, configHome, content string) {
	t.Helper()
	dir := filepath.Join(configHome, "budsctl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolateConfig(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if len(cfg.Plugins.ExtraDirs) != 0 {
		t.Errorf("Plugins.ExtraDirs = %v, want empty", cfg.Plugins.ExtraDirs)
	}
	if cfg.Metrics.Addr != "" {
		t.Errorf("Metrics.Addr = %q, want empty", cfg.Metrics.Addr)
	}
}

func TestLoadReadsFile(t *testing.T) {
	tmp := isolateConfig(t)
	writeConfig(t, tmp, `
logging:
  level: debug
plugins:
  extra_dirs:
    - /opt/budsctl/plugins
metrics:
  addr: "localhost:9090"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if len(cfg.Plugins.ExtraDirs) != 1 || cfg.Plugins.ExtraDirs[0] != "/opt/budsctl/plugins" {
		t.Errorf("Plugins.ExtraDirs = %v", cfg.Plugins.ExtraDirs)
	}
	if cfg.Metrics.Addr != "localhost:9090" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	tmp := isolateConfig(t)
	writeConfig(t, tmp, "logging:\n  level: info\n")
	t.Setenv("BUDSCTL_LOG_LEVEL", "error")
	t.Setenv("BUDSCTL_PLUGIN_DIR", "/tmp/extra")
	t.Setenv("BUDSCTL_METRICS_ADDR", "127.0.0.1:2112")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want env override", cfg.Logging.Level)
	}
	if len(cfg.Plugins.ExtraDirs) != 1 || cfg.Plugins.ExtraDirs[0] != "/tmp/extra" {
		t.Errorf("Plugins.ExtraDirs = %v", cfg.Plugins.ExtraDirs)
	}
	if cfg.Metrics.Addr != "127.0.0.1:2112" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoadRejectsInvalidLevel(t *testing.T) {
	tmp := isolateConfig(t)
	writeConfig(t, tmp, "logging:\n  level: loud\n")

	if _, err := Load(); err == nil {
		t.Error("Load() accepted an invalid log level")
	}
}

func TestLoadRejectsInvalidMetricsAddr(t *testing.T) {
	tmp := isolateConfig(t)
	writeConfig(t, tmp, "metrics:\n  addr: not-an-addr\n")

	if _, err := Load(); err == nil {
		t.Error("Load() accepted an invalid metrics address")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	tmp := isolateConfig(t)
	writeConfig(t, tmp, "logging: [unterminated\n")

	if _, err := Load(); err == nil {
		t.Error("Load() accepted malformed YAML")
	}
}

func TestPathUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	want := filepath.Join("/custom/config", "budsctl", "config.yaml")
	if got := Path(); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}
