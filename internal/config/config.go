// Package config loads tool settings: built-in defaults, then an optional
// YAML file, then environment overrides (optionally seeded from a .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FPB"

type Config struct {
	// DeviceURL is the base URL of the device's HTTP endpoint.
	DeviceURL string `envconfig:"DEVICE_URL"`
	// PollInterval is the repeating timer period of the sync poller.
	PollInterval time.Duration `envconfig:"POLL_INTERVAL"`
	// HTTPTimeout bounds each individual request.
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT"`
	// PrefsPath is the sqlite database holding UI layout preferences and
	// device profiles.
	PrefsPath string `envconfig:"PREFS_PATH"`
	// MetricsAddr, when set, serves Prometheus metrics on that address.
	MetricsAddr string `envconfig:"METRICS_ADDR"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	LogFormat   string `envconfig:"LOG_FORMAT"`
}

func Default() Config {
	return Config{
		DeviceURL:    "http://127.0.0.1:8008",
		PollInterval: 1 * time.Second,
		HTTPTimeout:  5 * time.Second,
		PrefsPath:    defaultPrefsPath(),
		LogLevel:     "info",
		LogFormat:    "console",
	}
}

// Load resolves the effective configuration. A missing file at path is not
// an error when path is empty; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.applyYAML(raw); err != nil {
			return Config{}, err
		}
	}

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors Config with durations as strings, since YAML has no
// native duration scalar. Pointer fields distinguish absent keys from zero
// values.
type fileConfig struct {
	DeviceURL    *string `yaml:"device_url"`
	PollInterval *string `yaml:"poll_interval"`
	HTTPTimeout  *string `yaml:"http_timeout"`
	PrefsPath    *string `yaml:"prefs_path"`
	MetricsAddr  *string `yaml:"metrics_addr"`
	LogLevel     *string `yaml:"log_level"`
	LogFormat    *string `yaml:"log_format"`
}

func (c *Config) applyYAML(raw []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if fc.DeviceURL != nil {
		c.DeviceURL = *fc.DeviceURL
	}
	if fc.PollInterval != nil {
		d, err := time.ParseDuration(*fc.PollInterval)
		if err != nil {
			return fmt.Errorf("parse poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if fc.HTTPTimeout != nil {
		d, err := time.ParseDuration(*fc.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("parse http_timeout: %w", err)
		}
		c.HTTPTimeout = d
	}
	if fc.PrefsPath != nil {
		c.PrefsPath = *fc.PrefsPath
	}
	if fc.MetricsAddr != nil {
		c.MetricsAddr = *fc.MetricsAddr
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		c.LogFormat = *fc.LogFormat
	}
	return nil
}

func (c Config) Validate() error {
	if c.DeviceURL == "" {
		return errors.New("config: device_url is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("config: poll_interval must be > 0")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("config: http_timeout must be > 0")
	}
	return nil
}

func defaultPrefsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fpbmon.db"
	}
	return filepath.Join(home, ".local", "state", "fpbmon", "prefs.db")
}
