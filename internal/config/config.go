// Package config loads the user configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muxpane/muxpane/internal/logging"
)

// Config is the muxpane configuration file.
type Config struct {
	// Shell is the command started in newly bound panes.
	Shell string `yaml:"shell"`
	// PollInterval is the output poll period, e.g. "250ms".
	PollInterval string `yaml:"poll_interval"`
	// ResizeDebounce is the quiet window before a resize is propagated.
	ResizeDebounce string `yaml:"resize_debounce"`
	// HistoryKB bounds per-process output capture in the local backend.
	HistoryKB int `yaml:"history_kb"`
	// StatePath overrides the layout database location.
	StatePath string         `yaml:"state_path"`
	Logging   logging.Config `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Shell:          defaultShell(),
		PollInterval:   "250ms",
		ResizeDebounce: "150ms",
		HistoryKB:      256,
	}
}

func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "sh"
}

// DefaultPath returns the user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "muxpane", "config.yml"), nil
}

// DefaultStatePath returns the layout database location.
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve state dir: %w", err)
	}
	return filepath.Join(dir, "muxpane", "state.db"), nil
}

// Load reads path over the defaults. A missing file is not an error;
// the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Shell == "" {
		cfg.Shell = defaultShell()
	}
	return cfg, nil
}

// PollIntervalDuration parses the configured poll interval.
func (c Config) PollIntervalDuration() (time.Duration, error) {
	return parsePositive("poll_interval", c.PollInterval)
}

// ResizeDebounceDuration parses the configured debounce window.
func (c Config) ResizeDebounceDuration() (time.Duration, error) {
	return parsePositive("resize_debounce", c.ResizeDebounce)
}

func parsePositive(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", field, d)
	}
	return d, nil
}
