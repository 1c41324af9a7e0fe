package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Config carries tunables that are policy rather than per-command input.
type Config struct {
	// UnmountAttempts bounds how often a transiently failing unmount is
	// retried during teardown.
	UnmountAttempts int `yaml:"unmount_attempts" default:"5"`
	// UnmountBackoff is the pause between unmount attempts.
	UnmountBackoff string `yaml:"unmount_backoff" default:"500ms"`
	// BootPath is where partition 1 is mounted inside the root tree.
	BootPath string `yaml:"boot_path" default:"/boot"`
	// DefaultUser, if set, is used by run when no --user is given.
	DefaultUser string `yaml:"default_user"`
}

// Default returns a config with every field at its default value
func Default() *Config {
	cfg := &Config{}
	// only fails on broken struct tags
	_ = defaults.Set(cfg)
	return cfg
}

// Load reads the user config file if present and fills unset fields with
// defaults. A missing file is not an error.
func Load() (*Config, error) {
	return LoadFile(filepath.Join(xdg.ConfigHome, "pirun", "config.yaml"))
}

// LoadFile is Load with an explicit path
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values that yaml decoding alone cannot reject
func (c *Config) Validate() error {
	if c.UnmountAttempts < 1 {
		return fmt.Errorf("unmount_attempts must be at least 1, got %d", c.UnmountAttempts)
	}
	if _, err := time.ParseDuration(c.UnmountBackoff); err != nil {
		return fmt.Errorf("unmount_backoff: %w", err)
	}
	if !filepath.IsAbs(c.BootPath) {
		return fmt.Errorf("boot_path must be absolute, got %q", c.BootPath)
	}
	return nil
}

// UnmountBackoffDuration returns the parsed backoff interval. Callers
// run Validate first; an unparsable value falls back to the default.
func (c *Config) UnmountBackoffDuration() time.Duration {
	d, err := time.ParseDuration(c.UnmountBackoff)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}
