package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Sandbox     SandboxConfig              `yaml:"sandbox"`
	Grader      GraderConfig               `yaml:"grader"`
	Toolchains  map[string]ToolchainConfig `yaml:"toolchains"`
	Analysis    AnalysisConfig             `yaml:"analysis"`
	Similarity  SimilarityConfig           `yaml:"similarity"`
	Performance PerformanceConfig          `yaml:"performance"`
	Database    DatabaseConfig             `yaml:"database"`
	Metrics     MetricsConfig              `yaml:"metrics"`
	Tracing     TracingConfig              `yaml:"tracing"`
	Worker      WorkerConfig               `yaml:"worker"`
}

type SandboxConfig struct {
	Isolation        string `yaml:"isolation"` // "process" (default), "containerd", "docker" or "auto"
	ContainerdSocket string `yaml:"containerd_socket"`
	Namespace        string `yaml:"namespace"`
	DefaultImage     string `yaml:"default_image"`
	MaxConcurrent    int    `yaml:"max_concurrent"`
	MaxOutputBytes   int    `yaml:"max_output_bytes"`
	Limits           Limits `yaml:"limits"`
}

type Limits struct {
	CPUShares int64 `yaml:"cpu_shares"`
	MemoryMB  int64 `yaml:"memory_mb"`
	PidsLimit int64 `yaml:"pids_limit"`
	DiskMB    int64 `yaml:"disk_mb"`
}

type GraderConfig struct {
	CaseTimeout       time.Duration `yaml:"case_timeout"`
	CompileTimeout    time.Duration `yaml:"compile_timeout"`
	MaxDiffLines      int           `yaml:"max_diff_lines"`
	CaseInsensitive   bool          `yaml:"case_insensitive"`
	Parallel          int           `yaml:"parallel"`
	FormatReportLimit int           `yaml:"format_report_limit"`
}

// ToolchainConfig declares or overrides a language toolchain. Command
// templates accept {src}, {exe}, {dir} and {class} placeholders.
type ToolchainConfig struct {
	Extension  string `yaml:"extension"`
	CompileCmd string `yaml:"compile_cmd"`
	RunCmd     string `yaml:"run_cmd"`
	Image      string `yaml:"image"`
}

type AnalysisConfig struct {
	Timeout  time.Duration   `yaml:"timeout"`
	Profiles []ProfileConfig `yaml:"profiles"`
}

// ProfileConfig is a configuration-provided static analysis profile.
type ProfileConfig struct {
	Name      string   `yaml:"name"`
	Command   string   `yaml:"command"`
	BaseArgs  []string `yaml:"base_args"`
	Suffix    string   `yaml:"suffix"`
	Rule      string   `yaml:"rule"`   // "empty_output" or "exit_code"
	Stream    string   `yaml:"stream"` // "stdout" or "stderr", for empty_output
	ExitCodes []int    `yaml:"exit_codes"`
}

type SimilarityConfig struct {
	SyntacticThreshold float64         `yaml:"syntactic_threshold"`
	SemanticThreshold  float64         `yaml:"semantic_threshold"`
	NoiseThreshold     int             `yaml:"noise_threshold"`
	GuaranteeThreshold int             `yaml:"guarantee_threshold"`
	Timeout            time.Duration   `yaml:"timeout"`
	Embedding          EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig points at an external embedding inference service.
type EmbeddingConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Model     string        `yaml:"model"`
	MaxLength int           `yaml:"max_length"`
	Timeout   time.Duration `yaml:"timeout"`
}

type PerformanceConfig struct {
	Sizes          []int         `yaml:"sizes"`
	MinTimeout     time.Duration `yaml:"min_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
	CompileTimeout time.Duration `yaml:"compile_timeout"`
	MinSamples     int           `yaml:"min_samples"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled bool    `yaml:"enabled"`
	Sample  float64 `yaml:"sample_rate"`
}

// WorkerConfig controls the queue-draining grading worker.
type WorkerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	BatchSize       int           `yaml:"batch_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ResultBuffer    int           `yaml:"result_buffer"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or env
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Isolation:        "process",
			ContainerdSocket: "/run/containerd/containerd.sock",
			Namespace:        "grader",
			DefaultImage:     "docker.io/library/gcc:14",
			MaxConcurrent:    16,
			MaxOutputBytes:   1 << 20,
			Limits: Limits{
				CPUShares: 1024,
				MemoryMB:  512,
				PidsLimit: 128,
				DiskMB:    64,
			},
		},
		Grader: GraderConfig{
			CaseTimeout:       120 * time.Second,
			CompileTimeout:    60 * time.Second,
			MaxDiffLines:      20,
			CaseInsensitive:   true,
			Parallel:          4,
			FormatReportLimit: 1000,
		},
		Toolchains: map[string]ToolchainConfig{},
		Analysis: AnalysisConfig{
			Timeout: 30 * time.Second,
		},
		Similarity: SimilarityConfig{
			SyntacticThreshold: 25.0,
			SemanticThreshold:  50.0,
			NoiseThreshold:     25,
			GuaranteeThreshold: 25,
			Timeout:            10 * time.Minute,
			Embedding: EmbeddingConfig{
				Model:     "YoussefHassan/graphcodebert-plagiarism-detector",
				MaxLength: 512,
				Timeout:   5 * time.Minute,
			},
		},
		Performance: PerformanceConfig{
			Sizes:          []int{10, 100, 1000, 10000},
			MinTimeout:     30 * time.Second,
			MaxTimeout:     300 * time.Second,
			CompileTimeout: 60 * time.Second,
			MinSamples:     3,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Sample: 0.1,
		},
		Worker: WorkerConfig{
			Host:            "0.0.0.0",
			Port:            9090,
			PollInterval:    2 * time.Second,
			BatchSize:       8,
			ShutdownTimeout: 30 * time.Second,
			ResultBuffer:    1000,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Sandbox.Isolation {
	case "", "process", "containerd", "docker", "auto":
	default:
		return fmt.Errorf("sandbox.isolation must be process, containerd, docker or auto, got %q", c.Sandbox.Isolation)
	}
	if c.Sandbox.MaxConcurrent < 1 {
		return fmt.Errorf("sandbox.max_concurrent must be >= 1")
	}
	if c.Grader.CaseTimeout <= 0 {
		return fmt.Errorf("grader.case_timeout must be positive")
	}
	if c.Grader.MaxDiffLines < 1 {
		return fmt.Errorf("grader.max_diff_lines must be >= 1, got %d", c.Grader.MaxDiffLines)
	}
	if c.Grader.Parallel < 1 {
		return fmt.Errorf("grader.parallel must be >= 1")
	}
	for name, tc := range c.Toolchains {
		if tc.RunCmd == "" {
			return fmt.Errorf("toolchains.%s.run_cmd is required", name)
		}
		if !strings.HasPrefix(tc.Extension, ".") {
			return fmt.Errorf("toolchains.%s.extension must start with '.', got %q", name, tc.Extension)
		}
	}
	for i, p := range c.Analysis.Profiles {
		if p.Name == "" || p.Command == "" {
			return fmt.Errorf("analysis.profiles[%d]: name and command are required", i)
		}
	}
	if t := c.Similarity.SyntacticThreshold; t < 0 || t > 100 {
		return fmt.Errorf("similarity.syntactic_threshold must be 0-100, got %g", t)
	}
	if t := c.Similarity.SemanticThreshold; t < 0 || t > 100 {
		return fmt.Errorf("similarity.semantic_threshold must be 0-100, got %g", t)
	}
	if c.Similarity.NoiseThreshold < 1 || c.Similarity.GuaranteeThreshold < c.Similarity.NoiseThreshold {
		return fmt.Errorf("similarity: need 1 <= noise_threshold <= guarantee_threshold")
	}
	if len(c.Performance.Sizes) == 0 {
		return fmt.Errorf("performance.sizes must not be empty")
	}
	for i := 1; i < len(c.Performance.Sizes); i++ {
		if c.Performance.Sizes[i] <= c.Performance.Sizes[i-1] {
			return fmt.Errorf("performance.sizes must be strictly ascending")
		}
	}
	if c.Performance.MinTimeout > c.Performance.MaxTimeout {
		return fmt.Errorf("performance.min_timeout (%s) must be <= max_timeout (%s)",
			c.Performance.MinTimeout, c.Performance.MaxTimeout)
	}
	if c.Worker.Port < 1 || c.Worker.Port > 65535 {
		return fmt.Errorf("worker.port must be 1-65535, got %d", c.Worker.Port)
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the worker's operational listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Worker.Host, c.Worker.Port)
}
