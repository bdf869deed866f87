package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 20*time.Second, cfg.RemovalDelay())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := []byte(`
addr: ":9000"
temp_path: /srv/builds
removal_delay_ms: 30000
shutdown_delay_s: 120
reset_on_start: false
root_redirect: https://example.com/play
cleanup:
  interval: 30s
  max_age: 5m
log:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "/srv/builds", cfg.TempPath)
	assert.Equal(t, 30*time.Second, cfg.RemovalDelay())
	assert.Equal(t, 2*time.Minute, cfg.ShutdownDelay())
	assert.False(t, cfg.ResetOnStart)
	assert.Equal(t, "https://example.com/play", cfg.RootRedirect)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval())
	assert.Equal(t, 5*time.Minute, cfg.CleanupMaxAge())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unterminated"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("TEMP_PATH and REMOVAL_DELAY", func(t *testing.T) {
		t.Setenv("TEMP_PATH", "/t")
		t.Setenv("REMOVAL_DELAY", "30000")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "/t", cfg.TempPath)
		assert.Equal(t, 30*time.Second, cfg.RemovalDelay())
	})

	t.Run("PORT becomes listen address", func(t *testing.T) {
		t.Setenv("PORT", "8080")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Addr)
	})

	t.Run("ADDR wins over PORT", func(t *testing.T) {
		t.Setenv("PORT", "8080")
		t.Setenv("ADDR", "127.0.0.1:9090")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	})

	t.Run("SHUTDOWN_DELAY and RESET_ON_START", func(t *testing.T) {
		t.Setenv("SHUTDOWN_DELAY", "45")
		t.Setenv("RESET_ON_START", "false")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 45*time.Second, cfg.ShutdownDelay())
		assert.False(t, cfg.ResetOnStart)
	})

	t.Run("non-numeric REMOVAL_DELAY", func(t *testing.T) {
		t.Setenv("REMOVAL_DELAY", "soon")

		_, err := Load("")
		assert.ErrorContains(t, err, "REMOVAL_DELAY")
	})
}

func TestGetenvDefault(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     string
	}{
		{name: "env var set", envValue: "custom", want: "custom"},
		{name: "env var empty", envValue: "", want: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BUILDS_TEST_VAR", tt.envValue)
			assert.Equal(t, tt.want, getenvDefault("BUILDS_TEST_VAR", "default"))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "empty temp path", mutate: func(c *Config) { c.TempPath = "" }, field: "temp_path"},
		{name: "root temp path", mutate: func(c *Config) { c.TempPath = "/" }, field: "temp_path"},
		{name: "zero removal delay", mutate: func(c *Config) { c.RemovalDelayMs = 0 }, field: "removal_delay_ms"},
		{name: "negative shutdown delay", mutate: func(c *Config) { c.ShutdownDelaySec = -1 }, field: "shutdown_delay_s"},
		{name: "port out of range", mutate: func(c *Config) { c.Addr = ":70000" }, field: "addr"},
		{name: "addr without port", mutate: func(c *Config) { c.Addr = "localhost" }, field: "addr"},
		{name: "bad cleanup interval", mutate: func(c *Config) { c.Cleanup.Interval = "often" }, field: "cleanup.interval"},
		{name: "zero cleanup interval", mutate: func(c *Config) { c.Cleanup.Interval = "0s" }, field: "cleanup.interval"},
		{name: "ftp redirect", mutate: func(c *Config) { c.RootRedirect = "ftp://example.com" }, field: "root_redirect"},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "trace" }, field: "log.level"},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, field: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TempPath = ""
	cfg.RemovalDelayMs = -5
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 error(s)")
}
