// Package config provides configuration loading for sleeptrack.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SecurityDirEnv overrides the directory holding Google credentials.
const SecurityDirEnv = "SECURITY_DIR"

// DefaultTolerance is used when resolve.tolerance is unset or zero.
const DefaultTolerance = 5 * time.Minute

// Config is the root configuration structure.
type Config struct {
	Calendar      CalendarConfig     `yaml:"calendar"`
	Resolve       ResolveConfig      `yaml:"resolve"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// CalendarConfig configures the calendar sleep events are written to.
type CalendarConfig struct {
	Name        string `yaml:"name"`
	TimeZone    string `yaml:"timezone"`
	Backend     string `yaml:"backend"` // "google", "caldav", "icloud", "ms365", "ics"
	URL         string `yaml:"url,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	PasswordCmd string `yaml:"password_cmd,omitempty"`
	Path        string `yaml:"path,omitempty"`         // For ics: file to write
	SecurityDir string `yaml:"security_dir,omitempty"` // For google: client_secret.json and token.json
}

// ResolveConfig configures interval defaults.
type ResolveConfig struct {
	// Tolerance may not be negative. Zero, or leaving it unset, selects
	// DefaultTolerance; there is no way to ask for an exact match.
	Tolerance       time.Duration `yaml:"tolerance"`
	DefaultEnd      string        `yaml:"default_end"`
	DefaultDuration string        `yaml:"default_duration"`
	DefaultOffset   string        `yaml:"default_offset"`
}

// NotificationConfig configures the desktop notification sent after recording.
type NotificationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultPath returns the default config file location (~/.config/sleeptrack/config.yaml).
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(configDir, "sleeptrack", "config.yaml"), nil
}

// Load reads configuration from the default location.
// A missing file is not an error; every option takes its default.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFrom(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		cfg.finish()
		return cfg, nil
	}
	return cfg, err
}

// LoadFrom reads configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.finish()
	return &cfg, nil
}

// finish applies defaults, environment overrides and path expansion.
func (c *Config) finish() {
	if dir := os.Getenv(SecurityDirEnv); dir != "" {
		c.Calendar.SecurityDir = dir
	}

	c.applyDefaults()

	c.Calendar.Path = expandPath(c.Calendar.Path)
	c.Calendar.SecurityDir = expandPath(c.Calendar.SecurityDir)
}

// applyDefaults sets default values for unspecified config options.
func (c *Config) applyDefaults() {
	if c.Calendar.Name == "" {
		c.Calendar.Name = "Sleep"
	}
	if c.Calendar.TimeZone == "" {
		c.Calendar.TimeZone = "America/Los_Angeles"
	}
	if c.Calendar.Backend == "" {
		c.Calendar.Backend = "google"
	}
	if c.Calendar.Path == "" {
		dataDir, _ := os.UserHomeDir()
		c.Calendar.Path = filepath.Join(dataDir, ".local", "share", "sleeptrack", "sleep.ics")
	}
	if c.Calendar.SecurityDir == "" {
		configDir, _ := os.UserConfigDir()
		c.Calendar.SecurityDir = filepath.Join(configDir, "sleeptrack")
	}
	if c.Resolve.Tolerance == 0 {
		c.Resolve.Tolerance = DefaultTolerance
	}
	if c.Resolve.DefaultEnd == "" {
		c.Resolve.DefaultEnd = "now"
	}
	if c.Resolve.DefaultDuration == "" {
		c.Resolve.DefaultDuration = "8"
	}
	if c.Resolve.DefaultOffset == "" {
		c.Resolve.DefaultOffset = "16"
	}
}

// Location loads the calendar's time zone.
func (c *CalendarConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// GetPassword returns the password for the calendar, executing password_cmd if needed.
func (c *CalendarConfig) GetPassword() (string, error) {
	if c.Password != "" {
		return c.Password, nil
	}
	if c.PasswordCmd == "" {
		return "", nil
	}

	cmd := exec.Command("sh", "-c", c.PasswordCmd)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("execute password_cmd: %w", err)
	}

	return strings.TrimSpace(string(out)), nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// UnmarshalYAML implements custom unmarshaling for the tolerance duration.
func (c *ResolveConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Tolerance       string `yaml:"tolerance"`
		DefaultEnd      string `yaml:"default_end"`
		DefaultDuration string `yaml:"default_duration"`
		DefaultOffset   string `yaml:"default_offset"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if strings.HasPrefix(strings.TrimSpace(raw.Tolerance), "-") {
		return fmt.Errorf("tolerance %q must not be negative", raw.Tolerance)
	}
	d, err := parseDuration(raw.Tolerance)
	if err != nil {
		return fmt.Errorf("parse tolerance: %w", err)
	}
	c.Tolerance = d
	c.DefaultEnd = raw.DefaultEnd
	c.DefaultDuration = raw.DefaultDuration
	c.DefaultOffset = raw.DefaultOffset
	return nil
}

// parseDuration parses Go durations plus whole days ("2d") and weeks ("1w").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var unit time.Duration
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	default:
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
		if d < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return d, nil
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return time.Duration(n) * unit, nil
}
