package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all toolrace configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Tool server registry and discovery
	Tools ToolsConfig `yaml:"tools"`

	// Race engine defaults
	Race RaceConfig `yaml:"race"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ToolsConfig configures where tool servers are declared and how they are queried.
type ToolsConfig struct {
	// ConfigPath is the JSON file mapping server names to launch commands.
	ConfigPath string `yaml:"config_path"`

	// DiscoveryConcurrency bounds parallel tools/list calls.
	DiscoveryConcurrency int `yaml:"discovery_concurrency"`
}

// RaceConfig configures racing of tool calls.
type RaceConfig struct {
	DefaultTimeout string `yaml:"default_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "toolrace",
		Version: "0.3.0",

		Tools: ToolsConfig{
			ConfigPath:           filepath.Join(".toolrace", "servers.json"),
			DiscoveryConcurrency: 4,
		},

		Race: RaceConfig{
			DefaultTimeout: "30s",
		},

		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults still honour environment overrides.
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
	if path := os.Getenv("TOOLRACE_TOOLS_CONFIG"); path != "" {
		c.Tools.ConfigPath = path
	}
	if timeout := os.Getenv("TOOLRACE_RACE_TIMEOUT"); timeout != "" {
		c.Race.DefaultTimeout = timeout
	}
	if level := os.Getenv("TOOLRACE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if debug := os.Getenv("TOOLRACE_DEBUG"); debug != "" {
		if on, err := strconv.ParseBool(debug); err == nil {
			c.Logging.DebugMode = on
		}
	}
}

// GetRaceTimeout returns the default race timeout as a duration.
func (c *Config) GetRaceTimeout() time.Duration {
	d, err := time.ParseDuration(c.Race.DefaultTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetDiscoveryConcurrency returns the discovery fan-out, at least 1.
func (c *Config) GetDiscoveryConcurrency() int {
	if c.Tools.DiscoveryConcurrency < 1 {
		return 1
	}
	return c.Tools.DiscoveryConcurrency
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Tools.ConfigPath == "" {
		return fmt.Errorf("tools.config_path must not be empty")
	}
	if c.Race.DefaultTimeout != "" {
		d, err := time.ParseDuration(c.Race.DefaultTimeout)
		if err != nil {
			return fmt.Errorf("invalid race.default_timeout %q: %w", c.Race.DefaultTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("race.default_timeout must be positive, got %s", d)
		}
	}

	validLevel := c.Logging.Level == ""
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	return nil
}
