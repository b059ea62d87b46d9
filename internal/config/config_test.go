package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		// Days and weeks
		{"1d", 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},

		// Standard Go durations
		{"5m", 5 * time.Minute, false},
		{"90s", 90 * time.Second, false},
		{"1h30m", time.Hour + 30*time.Minute, false},

		// Edge cases
		{"0d", 0, false},
		{"", 0, false},
		{"  10m  ", 10 * time.Minute, false},

		// Errors
		{"invalid", 0, true},
		{"d", 0, true},
		{"5x", 0, true},
		{"-1d", 0, true},
		{"-5m", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadFrom(t *testing.T) {
	t.Setenv(SecurityDirEnv, "")
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
calendar:
  name: Naps
  timezone: Europe/Berlin
  backend: ics
  path: ~/naps.ics
resolve:
  tolerance: 10m
  default_duration: "7.5"
  default_offset: 18 hours
notifications:
  enabled: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom error: %v", err)
	}

	if cfg.Calendar.Name != "Naps" {
		t.Errorf("name = %q", cfg.Calendar.Name)
	}
	if cfg.Calendar.TimeZone != "Europe/Berlin" {
		t.Errorf("timezone = %q", cfg.Calendar.TimeZone)
	}
	if cfg.Calendar.Backend != "ics" {
		t.Errorf("backend = %q", cfg.Calendar.Backend)
	}
	if want := filepath.Join(home, "naps.ics"); cfg.Calendar.Path != want {
		t.Errorf("path = %q, want %q", cfg.Calendar.Path, want)
	}
	if cfg.Resolve.Tolerance != 10*time.Minute {
		t.Errorf("tolerance = %v", cfg.Resolve.Tolerance)
	}
	if cfg.Resolve.DefaultEnd != "now" {
		t.Errorf("default end = %q, want default", cfg.Resolve.DefaultEnd)
	}
	if cfg.Resolve.DefaultDuration != "7.5" {
		t.Errorf("default duration = %q", cfg.Resolve.DefaultDuration)
	}
	if cfg.Resolve.DefaultOffset != "18 hours" {
		t.Errorf("default offset = %q", cfg.Resolve.DefaultOffset)
	}
	if !cfg.Notifications.Enabled {
		t.Error("notifications not enabled")
	}
}

func TestLoadFrom_Tolerance(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr string
	}{
		{value: "soon", wantErr: "parse tolerance"},
		{value: "-5m", wantErr: "must not be negative"},
		{value: `"-1d"`, wantErr: "must not be negative"},
		{value: "0s", want: DefaultTolerance},
		{value: `""`, want: DefaultTolerance},
		{value: "90s", want: 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte("resolve:\n  tolerance: "+tt.value+"\n"), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := LoadFrom(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Resolve.Tolerance != tt.want {
				t.Errorf("tolerance = %v, want %v", cfg.Resolve.Tolerance, tt.want)
			}
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(SecurityDirEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Calendar.Name != "Sleep" {
		t.Errorf("name = %q", cfg.Calendar.Name)
	}
	if cfg.Calendar.TimeZone != "America/Los_Angeles" {
		t.Errorf("timezone = %q", cfg.Calendar.TimeZone)
	}
	if cfg.Calendar.Backend != "google" {
		t.Errorf("backend = %q", cfg.Calendar.Backend)
	}
	if cfg.Resolve.Tolerance != 5*time.Minute {
		t.Errorf("tolerance = %v", cfg.Resolve.Tolerance)
	}
	if cfg.Resolve.DefaultEnd != "now" || cfg.Resolve.DefaultDuration != "8" || cfg.Resolve.DefaultOffset != "16" {
		t.Errorf("unexpected resolve defaults: %+v", cfg.Resolve)
	}
}

func TestLoadFrom_MissingExplicitFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestSecurityDirEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(SecurityDirEnv, dir)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("calendar:\n  security_dir: /elsewhere\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Calendar.SecurityDir != dir {
		t.Errorf("security dir = %q, want %q", cfg.Calendar.SecurityDir, dir)
	}
}

func TestGetPassword(t *testing.T) {
	c := CalendarConfig{Password: "direct", PasswordCmd: "echo ignored"}
	if got, _ := c.GetPassword(); got != "direct" {
		t.Errorf("password = %q", got)
	}

	c = CalendarConfig{PasswordCmd: "echo ' from-cmd '"}
	got, err := c.GetPassword()
	if err != nil {
		t.Fatal(err)
	}
	if got != "from-cmd" {
		t.Errorf("password = %q", got)
	}
}
