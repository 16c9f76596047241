// Package config provides configuration management for meshmap.
//
// A config file is optional: every setting has a default, and the server
// runs with no sources enabled when started bare. Flags on cmd/server
// override file values.
//
// Config file locations (priority order):
//  1. $MESHMAP_CONFIG
//  2. ./meshmap.yaml
//  3. ~/.config/meshmap/config.yaml
//  4. /etc/meshmap/config.yaml
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvAPIKey is the environment variable consulted for the control-plane
// API key when sources.tailnet.api_key_file is not set.
const EnvAPIKey = "MESHMAP_API_KEY"

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":3000"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = Duration(10 * time.Second)
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = Duration(60 * time.Second)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Database.Path == "" {
		c.Database.Path = "./meshmap.db"
	}
	if c.Layout.Timeout == 0 {
		c.Layout.Timeout = Duration(10 * time.Second)
	}
	if c.Layout.MaxForceNodes == 0 {
		c.Layout.MaxForceNodes = 1500
	}
	if c.Layout.Debounce == 0 {
		c.Layout.Debounce = Duration(100 * time.Millisecond)
	}
	if c.Sources.Tailnet.BaseURL == "" {
		c.Sources.Tailnet.BaseURL = "https://api.tailscale.com"
	}
	if c.Sources.Tailnet.Tailnet == "" {
		c.Sources.Tailnet.Tailnet = "-"
	}
	if c.Sources.Tailnet.PollInterval == 0 {
		c.Sources.Tailnet.PollInterval = Duration(30 * time.Second)
	}
	if c.Sources.Tailnet.Window == 0 {
		c.Sources.Tailnet.Window = Duration(5 * time.Minute)
	}
	if c.Sources.Tailnet.RatePerSec == 0 {
		c.Sources.Tailnet.RatePerSec = 2
	}
	if c.Sources.Spool.Dir == "" {
		c.Sources.Spool.Dir = "./spool"
	}
	if c.Sources.Capture.Window == 0 {
		c.Sources.Capture.Window = Duration(10 * time.Second)
	}
	if c.Sources.Capture.SnapLen == 0 {
		c.Sources.Capture.SnapLen = 1600
	}
}

// APIKey resolves the control-plane API key: file reference first, then
// the MESHMAP_API_KEY environment variable. Empty with no error means no
// key is configured.
func (t TailnetConfig) APIKey() (string, error) {
	if t.APIKeyFile != "" {
		data, err := os.ReadFile(t.APIKeyFile)
		if err != nil {
			return "", fmt.Errorf("read api key file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(os.Getenv(EnvAPIKey)), nil
}

// Validate reports configuration errors that cannot be defaulted away
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q: must be console or json", c.Log.Format)
	}
	if c.Sources.Capture.Enabled && c.Sources.Capture.Interface == "" {
		return fmt.Errorf("sources.capture.interface required when capture is enabled")
	}
	if c.Sources.Seed.Enabled && c.Sources.Seed.Path == "" {
		return fmt.Errorf("sources.seed.path required when seed is enabled")
	}
	if c.Sources.Tailnet.Enabled {
		key, err := c.Sources.Tailnet.APIKey()
		if err != nil {
			return err
		}
		if key == "" {
			return fmt.Errorf("sources.tailnet enabled but no API key: set api_key_file or %s", EnvAPIKey)
		}
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	var enabled []string
	if c.Sources.Tailnet.Enabled {
		enabled = append(enabled, "tailnet")
	}
	if c.Sources.Spool.Enabled {
		enabled = append(enabled, "spool")
	}
	if c.Sources.Capture.Enabled {
		enabled = append(enabled, "capture")
	}
	if c.Sources.Seed.Enabled {
		enabled = append(enabled, "seed")
	}
	if len(enabled) == 0 {
		enabled = append(enabled, "none")
	}

	return fmt.Sprintf("Listen: %s, DB: %s, Layout timeout: %s, Sources: %s",
		c.HTTP.Addr, c.Database.Path, c.Layout.Timeout.Duration(), strings.Join(enabled, " "))
}
