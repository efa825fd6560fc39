package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chazu/cctools/internal/logging"
)

// DefaultLogsDir is the log directory used when none is configured.
const DefaultLogsDir = logging.DefaultDir

// Config holds all cctools configuration.
type Config struct {
	// Directory receiving timestamped log files
	LogsDir string `yaml:"logs_dir"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Calculator defaults
	Calculation CalculationConfig `yaml:"calculation"`

	// Mesh loading and interpolation
	Mesh MeshConfig `yaml:"mesh"`

	// Result export
	Output OutputConfig `yaml:"output"`

	// Drive selection
	Drives DrivesConfig `yaml:"drives"`

	// Study script evaluation
	Engine EngineConfig `yaml:"engine"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`   // trace, debug, info, warn, error
	Console bool   `yaml:"console"` // log to stderr
	File    bool   `yaml:"file"`    // log to logs_dir
}

// CalculationConfig configures the model calculator.
type CalculationConfig struct {
	Rule          string `yaml:"rule"`          // additive, multiplicative
	Extrapolation string `yaml:"extrapolation"` // none, nearest, clamp
	Component     string `yaml:"component"`     // LONGITUDINAL, NORMAL, TRANSVERSE, MAGNITUDE
	Workers       int    `yaml:"workers"`
}

// MeshConfig configures mesh loading and interpolation.
type MeshConfig struct {
	Merge     string  `yaml:"merge"` // none, sum, average, max
	Neighbors int     `yaml:"neighbors"`
	Power     float64 `yaml:"power"`
}

// OutputConfig configures where results go.
type OutputConfig struct {
	Format string `yaml:"format"` // csv, jsonl
	Path   string `yaml:"path"`   // empty means stdout
}

// DrivesConfig configures drive id matching.
type DrivesConfig struct {
	Prefix string `yaml:"prefix"`
}

// EngineConfig configures study script evaluation.
type EngineConfig struct {
	Timeout string `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogsDir: DefaultLogsDir,
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    true,
		},
		Calculation: CalculationConfig{
			Rule:          "additive",
			Extrapolation: "none",
			Component:     "MAGNITUDE",
			Workers:       4,
		},
		Mesh: MeshConfig{
			Merge:     "none",
			Neighbors: 4,
			Power:     2,
		},
		Output: OutputConfig{
			Format: "csv",
		},
		Drives: DrivesConfig{
			Prefix: "B",
		},
		Engine: EngineConfig{
			Timeout: "5s",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("CCTOOLS_LOGS_DIR"); dir != "" {
		c.LogsDir = dir
	}
	if lvl := os.Getenv("CCTOOLS_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if w := os.Getenv("CCTOOLS_WORKERS"); w != "" {
		if n, err := strconv.Atoi(w); err == nil {
			c.Calculation.Workers = n
		}
	}
}

// LoggerConfig returns the logging settings in the form logging.New takes.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Dir:     c.LogsDir,
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    c.Logging.File,
	}
}

// GetEngineTimeout returns the study evaluation timeout as a duration.
func (c *Config) GetEngineTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

var (
	// ValidRules lists the harmonic-to-mesh combination rules.
	ValidRules = []string{"additive", "multiplicative"}
	// ValidExtrapolations lists the out-of-domain policies.
	ValidExtrapolations = []string{"none", "nearest", "clamp"}
	// ValidComponents lists the mesh field components.
	ValidComponents = []string{"LONGITUDINAL", "NORMAL", "TRANSVERSE", "MAGNITUDE"}
	// ValidMergePolicies lists the duplicate-sample merge policies.
	ValidMergePolicies = []string{"none", "sum", "average", "max"}
	// ValidFormats lists the result export formats.
	ValidFormats = []string{"csv", "jsonl"}
)

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if !oneOf(c.Calculation.Rule, ValidRules) {
		return fmt.Errorf("invalid combination rule: %s (valid: %v)", c.Calculation.Rule, ValidRules)
	}
	if !oneOf(c.Calculation.Extrapolation, ValidExtrapolations) {
		return fmt.Errorf("invalid extrapolation policy: %s (valid: %v)", c.Calculation.Extrapolation, ValidExtrapolations)
	}
	if !oneOf(c.Calculation.Component, ValidComponents) {
		return fmt.Errorf("invalid component: %s (valid: %v)", c.Calculation.Component, ValidComponents)
	}
	if c.Calculation.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Calculation.Workers)
	}
	if !oneOf(c.Mesh.Merge, ValidMergePolicies) {
		return fmt.Errorf("invalid merge policy: %s (valid: %v)", c.Mesh.Merge, ValidMergePolicies)
	}
	if c.Mesh.Neighbors < 1 {
		return fmt.Errorf("neighbors must be positive, got %d", c.Mesh.Neighbors)
	}
	if c.Mesh.Power <= 0 {
		return fmt.Errorf("power must be positive, got %g", c.Mesh.Power)
	}
	if !oneOf(c.Output.Format, ValidFormats) {
		return fmt.Errorf("invalid output format: %s (valid: %v)", c.Output.Format, ValidFormats)
	}
	return nil
}
