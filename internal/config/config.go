// Package config loads the simulator's run configuration: how many
// sites and variables make up the database, where the input script
// lives, and how the ambient logging and diagnostics stack behave.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every knob the simulator reads before it starts
// replaying a script.
type Config struct {
	Topology    TopologyConfig    `yaml:"topology"`
	Script      ScriptConfig      `yaml:"script"`
	Logging     LoggingConfig     `yaml:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// TopologyConfig sizes the simulated database.
type TopologyConfig struct {
	SiteCount     int `yaml:"site_count" env:"QUORUMKV_SITE_COUNT"`
	VariableCount int `yaml:"variable_count" env:"QUORUMKV_VARIABLE_COUNT"`
}

// ScriptConfig points at the input trace to replay.
type ScriptConfig struct {
	InputDir string `yaml:"input_dir" env:"QUORUMKV_INPUT_DIR"`
	Input    string `yaml:"input" env:"QUORUMKV_INPUT"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"QUORUMKV_LOG_LEVEL"`
	Format string `yaml:"format" env:"QUORUMKV_LOG_FORMAT"` // "json" or "text"
}

// DiagnosticsConfig controls the optional trace/snapshot exporter.
type DiagnosticsConfig struct {
	TraceEnabled    bool   `yaml:"trace_enabled" env:"QUORUMKV_TRACE_ENABLED"`
	TraceCompressor string `yaml:"trace_compressor" env:"QUORUMKV_TRACE_COMPRESSOR"` // "none", "snappy", "zstd", "lz4"
	TraceOutputDir  string `yaml:"trace_output_dir" env:"QUORUMKV_TRACE_OUTPUT_DIR"`
}

// Default returns the configuration used by every example script in
// spec.md §6: 10 sites, 20 variables, plain-text console logging at
// info level, diagnostics off.
func Default() *Config {
	return &Config{
		Topology: TopologyConfig{
			SiteCount:     10,
			VariableCount: 20,
		},
		Script: ScriptConfig{
			InputDir: "./input/",
			Input:    "input1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Diagnostics: DiagnosticsConfig{
			TraceEnabled:    false,
			TraceCompressor: "none",
			TraceOutputDir:  "./trace",
		},
	}
}

// LoadFile reads a YAML config file on top of the defaults. A missing
// or unreadable file is an error — callers that only want env/flag overrides on
// top of Default should skip calling this.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables named by each field's env
// tag on top of an already-loaded config.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("QUORUMKV_SITE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Topology.SiteCount = n
		}
	}
	if v := os.Getenv("QUORUMKV_VARIABLE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Topology.VariableCount = n
		}
	}
	if v := os.Getenv("QUORUMKV_INPUT_DIR"); v != "" {
		c.Script.InputDir = v
	}
	if v := os.Getenv("QUORUMKV_INPUT"); v != "" {
		c.Script.Input = v
	}
	if v := os.Getenv("QUORUMKV_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("QUORUMKV_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("QUORUMKV_TRACE_ENABLED"); v != "" {
		c.Diagnostics.TraceEnabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("QUORUMKV_TRACE_COMPRESSOR"); v != "" {
		c.Diagnostics.TraceCompressor = v
	}
	if v := os.Getenv("QUORUMKV_TRACE_OUTPUT_DIR"); v != "" {
		c.Diagnostics.TraceOutputDir = v
	}
}

// Validate reports a config that cannot be run.
func (c *Config) Validate() error {
	if c.Topology.SiteCount < 1 {
		return fmt.Errorf("config: site_count must be at least 1, got %d", c.Topology.SiteCount)
	}
	if c.Topology.VariableCount < 1 {
		return fmt.Errorf("config: variable_count must be at least 1, got %d", c.Topology.VariableCount)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: logging.format must be json or text, got %q", c.Logging.Format)
	}
	switch c.Diagnostics.TraceCompressor {
	case "none", "snappy", "zstd", "lz4":
	default:
		return fmt.Errorf("config: diagnostics.trace_compressor must be none, snappy, zstd or lz4, got %q", c.Diagnostics.TraceCompressor)
	}
	return nil
}
