package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err, "explicit missing path must fail")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "239.172.243.75", cfg.Discovery.Group)
	assert.Equal(t, 1900, cfg.Discovery.Port)
	assert.Equal(t, "127.0.0.1", cfg.Command.Host)
	assert.Equal(t, "python3", cfg.Script.Interpreter)
	assert.Equal(t, 64, cfg.Queue.Capacity)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  pretty: true
discovery:
  port: 2900
script:
  interpreter: python3.12
  timeout: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, 2900, cfg.Discovery.Port)
	assert.Equal(t, "python3.12", cfg.Script.Interpreter)
	assert.Equal(t, 30*time.Second, cfg.Script.Timeout)

	// Untouched sections keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Command.Host)
	assert.Equal(t, 64, cfg.Queue.Capacity)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	t.Setenv("FUSION_BRIDGE_LOG_LEVEL", "warn")
	t.Setenv("FUSION_BRIDGE_QUEUE_CAPACITY", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Queue.Capacity)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "log: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"negative discovery port": func(c *Config) { c.Discovery.Port = -1 },
		"oversized port":          func(c *Config) { c.Discovery.Port = 70000 },
		"empty command host":      func(c *Config) { c.Command.Host = "" },
		"empty interpreter":       func(c *Config) { c.Script.Interpreter = "" },
		"negative timeout":        func(c *Config) { c.Script.Timeout = -time.Second },
		"zero queue capacity":     func(c *Config) { c.Queue.Capacity = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	valid := Default()
	assert.NoError(t, valid.Validate())
}
