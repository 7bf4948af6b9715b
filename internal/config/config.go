// Package config loads the host/client's YAML configuration file:
// socket directory override, scrollback limit, vim-sequence timeout and
// bindings, key-binding overrides, and log verbosity.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the parsed contents of config.yaml.
type Config struct {
	SocketDir        string            `yaml:"socket_dir,omitempty"`
	ScrollbackLimit  int               `yaml:"scrollback_limit,omitempty"`
	VimSequenceMS    int               `yaml:"vim_sequence_timeout_ms,omitempty"`
	KeyBindings      map[string]string `yaml:"key_bindings,omitempty"`
	LogLevel         string            `yaml:"log_level,omitempty"`
}

const (
	defaultScrollbackLimit = 10000
	defaultVimSequenceMS   = 500
	defaultLogLevel        = "info"
)

// VimSequenceTimeout returns the configured vim-sequence pending-key
// timeout, or the default if unset.
func (c *Config) VimSequenceTimeout() time.Duration {
	if c.VimSequenceMS <= 0 {
		return defaultVimSequenceMS * time.Millisecond
	}
	return time.Duration(c.VimSequenceMS) * time.Millisecond
}

// Scrollback returns the configured scrollback line limit, or the default
// if unset.
func (c *Config) Scrollback() int {
	if c.ScrollbackLimit <= 0 {
		return defaultScrollbackLimit
	}
	return c.ScrollbackLimit
}

// Level returns the configured log verbosity, or "info" if unset.
func (c *Config) Level() string {
	if c.LogLevel == "" {
		return defaultLogLevel
	}
	return c.LogLevel
}

// ConfigDir returns the termcore configuration directory (~/.termcore/).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".termcore")
	}
	return filepath.Join(home, ".termcore")
}

// Load reads the config from ~/.termcore/config.yaml. If the file does
// not exist, it returns a zero-value Config (all defaults apply) with no
// error.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(ConfigDir(), "config.yaml"))
}

// LoadFrom reads the config from the given path. If the file does not
// exist, it returns a zero-value Config with no error.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
