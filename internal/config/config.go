// Package config loads the build server configuration from an optional YAML
// file and the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the build server.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string `yaml:"addr"`

	// TempPath is the root under which every build bundle lives.
	TempPath string `yaml:"temp_path"`

	// RemovalDelayMs is how long a bundle survives after its index was served.
	RemovalDelayMs int64 `yaml:"removal_delay_ms"`

	// ShutdownDelaySec stops the server after that many idle seconds. Zero disables it.
	ShutdownDelaySec int64 `yaml:"shutdown_delay_s"`

	// ResetOnStart removes leftover bundles from TempPath at start-up.
	ResetOnStart bool `yaml:"reset_on_start"`

	// RootRedirect is where "/" points to. Empty means "/" is a 404.
	RootRedirect string `yaml:"root_redirect"`

	Cleanup CleanupConfig `yaml:"cleanup"`
	Log     LogConfig     `yaml:"log"`
}

// CleanupConfig drives the periodic bundle sweep.
type CleanupConfig struct {
	Interval string `yaml:"interval"`
	MaxAge   string `yaml:"max_age"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":3000",
		TempPath:       "../temp",
		RemovalDelayMs: 20000,
		ResetOnStart:   true,
		Cleanup: CleanupConfig{
			Interval: "1m",
			MaxAge:   "10m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path on top of the defaults and applies the
// environment overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	c.Addr = getenvDefault("ADDR", c.Addr)
	c.TempPath = getenvDefault("TEMP_PATH", c.TempPath)
	c.RootRedirect = getenvDefault("ROOT_REDIRECT", c.RootRedirect)
	c.Cleanup.Interval = getenvDefault("CLEANUP_INTERVAL", c.Cleanup.Interval)
	c.Cleanup.MaxAge = getenvDefault("CLEANUP_MAX_AGE", c.Cleanup.MaxAge)
	c.Log.Level = getenvDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenvDefault("LOG_FORMAT", c.Log.Format)

	if v := os.Getenv("REMOVAL_DELAY"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("REMOVAL_DELAY must be milliseconds: %w", err)
		}
		c.RemovalDelayMs = ms
	}
	if v := os.Getenv("SHUTDOWN_DELAY"); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SHUTDOWN_DELAY must be seconds: %w", err)
		}
		c.ShutdownDelaySec = secs
	}
	if v := os.Getenv("RESET_ON_START"); v != "" {
		reset, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RESET_ON_START must be a boolean: %w", err)
		}
		c.ResetOnStart = reset
	}
	return nil
}

// RemovalDelay is RemovalDelayMs as a duration.
func (c *Config) RemovalDelay() time.Duration {
	return time.Duration(c.RemovalDelayMs) * time.Millisecond
}

// ShutdownDelay is ShutdownDelaySec as a duration.
func (c *Config) ShutdownDelay() time.Duration {
	return time.Duration(c.ShutdownDelaySec) * time.Second
}

// CleanupInterval parses Cleanup.Interval. Call Validate first.
func (c *Config) CleanupInterval() time.Duration {
	d, _ := time.ParseDuration(c.Cleanup.Interval)
	return d
}

// CleanupMaxAge parses Cleanup.MaxAge. Call Validate first.
func (c *Config) CleanupMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.Cleanup.MaxAge)
	return d
}

// getenvDefault reads an environment variable and returns def if it is unset or empty.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
