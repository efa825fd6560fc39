package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Setenv("CCTOOLS_LOGS_DIR", "")
	t.Setenv("CCTOOLS_LOG_LEVEL", "")
	t.Setenv("CCTOOLS_WORKERS", "")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LogsDir != DefaultLogsDir {
		t.Errorf("expected LogsDir=%s, got %s", DefaultLogsDir, cfg.LogsDir)
	}
	if cfg.Calculation.Rule != "additive" {
		t.Errorf("expected Rule=additive, got %s", cfg.Calculation.Rule)
	}
	if cfg.Mesh.Neighbors != 4 || cfg.Mesh.Power != 2 {
		t.Errorf("expected IDW k=4 p=2, got k=%d p=%g", cfg.Mesh.Neighbors, cfg.Mesh.Power)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "cctools.yaml")

	cfg := DefaultConfig()
	cfg.Calculation.Rule = "multiplicative"
	cfg.Calculation.Extrapolation = "clamp"
	cfg.Mesh.Merge = "average"
	cfg.Output.Path = "out/results.jsonl"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Calculation.Rule != "multiplicative" {
		t.Errorf("expected Rule=multiplicative, got %s", loaded.Calculation.Rule)
	}
	if loaded.Calculation.Extrapolation != "clamp" {
		t.Errorf("expected Extrapolation=clamp, got %s", loaded.Calculation.Extrapolation)
	}
	if loaded.Mesh.Merge != "average" {
		t.Errorf("expected Merge=average, got %s", loaded.Mesh.Merge)
	}
	if loaded.Output.Path != "out/results.jsonl" {
		t.Errorf("expected Output.Path=out/results.jsonl, got %s", loaded.Output.Path)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Calculation.Workers != 4 {
		t.Errorf("expected default Workers=4, got %d", cfg.Calculation.Workers)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "cctools.yaml")
	if err := os.WriteFile(path, []byte("calculation:\n  workers: 8\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Calculation.Workers != 8 {
		t.Errorf("expected Workers=8, got %d", cfg.Calculation.Workers)
	}
	if cfg.Mesh.Neighbors != 4 {
		t.Errorf("expected default Neighbors=4, got %d", cfg.Mesh.Neighbors)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("calculation: [unclosed\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CCTOOLS_LOGS_DIR", "/var/log/cctools")
	t.Setenv("CCTOOLS_LOG_LEVEL", "warn")
	t.Setenv("CCTOOLS_WORKERS", "16")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogsDir != "/var/log/cctools" {
		t.Errorf("expected LogsDir=/var/log/cctools, got %s", cfg.LogsDir)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected Level=warn, got %s", cfg.Logging.Level)
	}
	if cfg.Calculation.Workers != 16 {
		t.Errorf("expected Workers=16, got %d", cfg.Calculation.Workers)
	}

	lc := cfg.LoggerConfig()
	if lc.Dir != "/var/log/cctools" || lc.Level != "warn" {
		t.Errorf("LoggerConfig = %+v", lc)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"rule", func(c *Config) { c.Calculation.Rule = "geometric" }},
		{"extrapolation", func(c *Config) { c.Calculation.Extrapolation = "linear" }},
		{"component", func(c *Config) { c.Calculation.Component = "RADIAL" }},
		{"workers", func(c *Config) { c.Calculation.Workers = 0 }},
		{"merge", func(c *Config) { c.Mesh.Merge = "min" }},
		{"neighbors", func(c *Config) { c.Mesh.Neighbors = 0 }},
		{"power", func(c *Config) { c.Mesh.Power = 0 }},
		{"format", func(c *Config) { c.Output.Format = "xml" }},
		{"level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Calculation.Component = "normal"
	if err := cfg.Validate(); err != nil {
		t.Errorf("component names are case-insensitive: %v", err)
	}
}

func TestGetEngineTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Timeout = "250ms"
	if got := cfg.GetEngineTimeout(); got != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", got)
	}
	cfg.Engine.Timeout = "soon"
	if got := cfg.GetEngineTimeout(); got != 5*time.Second {
		t.Errorf("expected fallback 5s, got %v", got)
	}
}
