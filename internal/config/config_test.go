package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8008", cfg.DeviceURL)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.PrefsPath)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpbmon.yaml")
	data := "device_url: http://10.0.0.9:8008\npoll_interval: 250ms\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.9:8008", cfg.DeviceURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpbmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device_url: http://from-file:8008\n"), 0o600))
	t.Setenv("FPB_DEVICE_URL", "http://from-env:8008")
	t.Setenv("FPB_POLL_INTERVAL", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8008", cfg.DeviceURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.DeviceURL = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.PollInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.HTTPTimeout = -time.Second
	assert.Error(t, cfg.Validate())
}
