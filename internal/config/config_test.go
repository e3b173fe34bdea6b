package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, time.RFC3339, cfg.Logging.TimeFormat)

	assert.False(t, cfg.API.Enabled)
	assert.Equal(t, "0.0.0.0", cfg.API.Host)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 30*time.Second, cfg.API.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.API.ShutdownTimeout)

	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: text
api:
  enabled: true
  host: 127.0.0.1
  port: 9000
  read_timeout: 5s
metrics:
  enabled: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.Address())
	assert.Equal(t, 5*time.Second, cfg.API.ReadTimeout)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VIDPIPE_LOGGING_LEVEL", "warn")
	t.Setenv("VIDPIPE_API_PORT", "7777")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 7777, cfg.API.Port)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"bad_level.yaml":  "logging:\n  level: loud\n",
		"bad_format.yaml": "logging:\n  format: xml\n",
		"bad_port.yaml":   "api:\n  port: 99999\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestValidateMetricsPath(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		API:     APIConfig{Port: 8080},
		Metrics: MetricsConfig{Enabled: true, Path: "metrics"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Metrics.Path = "/metrics"
	assert.NoError(t, cfg.Validate())
}
