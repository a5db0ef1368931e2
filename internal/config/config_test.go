package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Grader.CaseTimeout != 120*time.Second {
		t.Errorf("Grader.CaseTimeout = %s, want 120s", cfg.Grader.CaseTimeout)
	}
	if cfg.Grader.MaxDiffLines != 20 {
		t.Errorf("Grader.MaxDiffLines = %d, want 20", cfg.Grader.MaxDiffLines)
	}
	if !cfg.Grader.CaseInsensitive {
		t.Error("Grader.CaseInsensitive = false, want true")
	}
	if cfg.Sandbox.Isolation != "process" {
		t.Errorf("Sandbox.Isolation = %q, want process", cfg.Sandbox.Isolation)
	}
	if cfg.Similarity.SyntacticThreshold != 25 || cfg.Similarity.SemanticThreshold != 50 {
		t.Errorf("similarity thresholds = %g/%g, want 25/50",
			cfg.Similarity.SyntacticThreshold, cfg.Similarity.SemanticThreshold)
	}
	if cfg.Performance.MinSamples != 3 {
		t.Errorf("Performance.MinSamples = %d, want 3", cfg.Performance.MinSamples)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"unknown isolation", func(c *Config) { c.Sandbox.Isolation = "firecracker" }, true},
		{"docker isolation", func(c *Config) { c.Sandbox.Isolation = "docker" }, false},
		{"max_concurrent 0", func(c *Config) { c.Sandbox.MaxConcurrent = 0 }, true},
		{"zero case timeout", func(c *Config) { c.Grader.CaseTimeout = 0 }, true},
		{"zero diff lines", func(c *Config) { c.Grader.MaxDiffLines = 0 }, true},
		{"toolchain without run_cmd", func(c *Config) {
			c.Toolchains["lua"] = ToolchainConfig{Extension: ".lua"}
		}, true},
		{"toolchain extension without dot", func(c *Config) {
			c.Toolchains["lua"] = ToolchainConfig{Extension: "lua", RunCmd: "lua {src}"}
		}, true},
		{"valid toolchain", func(c *Config) {
			c.Toolchains["lua"] = ToolchainConfig{Extension: ".lua", RunCmd: "lua {src}"}
		}, false},
		{"profile without command", func(c *Config) {
			c.Analysis.Profiles = []ProfileConfig{{Name: "x"}}
		}, true},
		{"threshold over 100", func(c *Config) { c.Similarity.SyntacticThreshold = 101 }, true},
		{"noise above guarantee", func(c *Config) {
			c.Similarity.NoiseThreshold = 30
			c.Similarity.GuaranteeThreshold = 20
		}, true},
		{"unsorted sizes", func(c *Config) { c.Performance.Sizes = []int{100, 10} }, true},
		{"empty sizes", func(c *Config) { c.Performance.Sizes = nil }, true},
		{"min timeout above max", func(c *Config) {
			c.Performance.MinTimeout = time.Hour
		}, true},
		{"worker port 99999", func(c *Config) { c.Worker.Port = 99999 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
grader:
  case_timeout: 5s
  max_diff_lines: 10
  case_insensitive: false
toolchains:
  lua:
    extension: .lua
    run_cmd: "lua {src}"
analysis:
  profiles:
    - name: ruff
      command: ruff
      base_args: ["check", "--quiet"]
      suffix: .py
      rule: exit_code
      exit_codes: [0]
performance:
  sizes: [16, 256, 4096]
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(yamlContent); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Grader.CaseTimeout != 5*time.Second {
		t.Errorf("Grader.CaseTimeout = %s, want 5s", cfg.Grader.CaseTimeout)
	}
	if cfg.Grader.MaxDiffLines != 10 {
		t.Errorf("Grader.MaxDiffLines = %d, want 10", cfg.Grader.MaxDiffLines)
	}
	if cfg.Grader.CaseInsensitive {
		t.Error("Grader.CaseInsensitive = true, want false")
	}
	if got := cfg.Toolchains["lua"].RunCmd; got != "lua {src}" {
		t.Errorf("Toolchains[lua].RunCmd = %q, want %q", got, "lua {src}")
	}
	if len(cfg.Analysis.Profiles) != 1 || cfg.Analysis.Profiles[0].Name != "ruff" {
		t.Errorf("Analysis.Profiles = %+v, want one ruff profile", cfg.Analysis.Profiles)
	}
	if len(cfg.Performance.Sizes) != 3 || cfg.Performance.Sizes[2] != 4096 {
		t.Errorf("Performance.Sizes = %v, want [16 256 4096]", cfg.Performance.Sizes)
	}
	// Untouched sections keep their defaults.
	if cfg.Similarity.NoiseThreshold != 25 {
		t.Errorf("Similarity.NoiseThreshold = %d, want 25", cfg.Similarity.NoiseThreshold)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("grader:\n  max_diff_lines: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error, got nil")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestAddress(t *testing.T) {
	cfg := DefaultConfig()
	want := "0.0.0.0:9090"
	if got := cfg.Address(); got != want {
		t.Errorf("Address() = %q, want %q", got, want)
	}

	cfg.Worker.Host = "127.0.0.1"
	cfg.Worker.Port = 3000
	want = "127.0.0.1:3000"
	if got := cfg.Address(); got != want {
		t.Errorf("Address() = %q, want %q", got, want)
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Grader != def.Grader {
		t.Errorf("Grader = %+v, want defaults %+v", cfg.Grader, def.Grader)
	}
	if cfg.Worker != def.Worker {
		t.Errorf("Worker = %+v, want defaults %+v", cfg.Worker, def.Worker)
	}
	if cfg.Similarity.Embedding.Endpoint != "" {
		t.Errorf("Embedding.Endpoint = %q, want empty", cfg.Similarity.Embedding.Endpoint)
	}
}
