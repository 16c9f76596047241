package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Layout   LayoutConfig   `yaml:"layout"`
	Sources  SourcesConfig  `yaml:"sources"`
}

// HTTPConfig holds listener settings
type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	ReadTimeout Duration `yaml:"read_timeout,omitempty"`
	IdleTimeout Duration `yaml:"idle_timeout,omitempty"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LayoutConfig tunes the layout engine and rebuild pipeline
type LayoutConfig struct {
	Timeout       Duration `yaml:"timeout,omitempty"`
	MaxForceNodes int      `yaml:"max_force_nodes,omitempty"`
	Debounce      Duration `yaml:"debounce,omitempty"`
}

// SourcesConfig holds per-source settings
type SourcesConfig struct {
	Tailnet TailnetConfig `yaml:"tailnet"`
	Spool   SpoolConfig   `yaml:"spool"`
	Capture CaptureConfig `yaml:"capture"`
	Seed    SeedConfig    `yaml:"seed"`
}

// TailnetConfig configures the control-plane API poller.
// The API key is referenced by path or environment variable, never stored
// in the config file itself.
type TailnetConfig struct {
	Enabled      bool     `yaml:"enabled"`
	BaseURL      string   `yaml:"base_url"`
	Tailnet      string   `yaml:"tailnet"`
	APIKeyFile   string   `yaml:"api_key_file,omitempty"`
	PollInterval Duration `yaml:"poll_interval,omitempty"`
	Window       Duration `yaml:"window,omitempty"`
	RatePerSec   float64  `yaml:"rate_per_sec,omitempty"`
}

// SpoolConfig configures the spool-directory source
type SpoolConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// CaptureConfig configures the live packet-capture source
type CaptureConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Interface string   `yaml:"interface"`
	Window    Duration `yaml:"window,omitempty"`
	SnapLen   int      `yaml:"snap_len,omitempty"`
	Promisc   bool     `yaml:"promisc,omitempty"`
}

// SeedConfig configures the YAML directory seed, a stand-in for the
// control plane's device and name tables in offline deployments
type SeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
