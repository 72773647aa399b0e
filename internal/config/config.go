// Package config loads the global and per-profile TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Global represents ~/.chronsync/config.toml.
type Global struct {
	DefaultProfile string `toml:"default_profile"`
}

// Duration is a time.Duration written as a string such as "5m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Profile is a profile's config.toml.
type Profile struct {
	Device  DeviceConfig  `toml:"device"`
	Sync    SyncConfig    `toml:"sync"`
	Server  ServerConfig  `toml:"server"`
	Capture CaptureConfig `toml:"capture"`
	Log     LogConfig     `toml:"log"`
}

// DeviceConfig overrides the environment reported for this device. Empty
// fields fall back to runtime detection.
type DeviceConfig struct {
	Platform       string `toml:"platform,omitempty"`
	BrowserName    string `toml:"browser_name,omitempty"`
	BrowserVersion string `toml:"browser_version,omitempty"`
	UserAgent      string `toml:"user_agent,omitempty"`
}

type SyncConfig struct {
	Remote       string   `toml:"remote"`
	ClientID     string   `toml:"client_id"`
	Interval     Duration `toml:"interval"`
	Timeout      Duration `toml:"timeout"`
	MinGap       Duration `toml:"min_gap"`
	SyncOnStart  bool     `toml:"sync_on_start"`
	TombstoneTTL Duration `toml:"tombstone_ttl"`
}

// ServerConfig enables the hub endpoint when Listen is set.
type ServerConfig struct {
	Listen    string   `toml:"listen"`
	ClientIDs []string `toml:"client_ids,omitempty"`
}

// CaptureConfig filters recorded visits. A missing skip_schemes keeps the
// built-in list; an explicit empty list records every scheme.
type CaptureConfig struct {
	SkipSchemes []string `toml:"skip_schemes,omitempty"`
	DenyDomains []string `toml:"deny_domains,omitempty"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the profile configuration used when no file exists.
func Default() *Profile {
	return &Profile{
		Sync: SyncConfig{
			Interval:    Duration{5 * time.Minute},
			Timeout:     Duration{30 * time.Second},
			MinGap:      Duration{30 * time.Second},
			SyncOnStart: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks value ranges.
func (p *Profile) Validate() error {
	if p.Sync.Interval.Duration <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", p.Sync.Interval)
	}
	if p.Sync.Timeout.Duration < 0 || p.Sync.MinGap.Duration < 0 || p.Sync.TombstoneTTL.Duration < 0 {
		return errors.New("sync durations must not be negative")
	}
	switch strings.ToLower(p.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", p.Log.Level)
	}
	return nil
}

// LoadGlobal reads the global config. A missing file yields an empty config.
func LoadGlobal(path string) (*Global, error) {
	var cfg Global
	if err := decode(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// LoadProfile reads a profile config over Default. A missing file yields
// the defaults.
func LoadProfile(path string) (*Profile, error) {
	cfg := Default()
	if err := decode(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, v any) error {
	md, err := toml.DecodeFile(path, v)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Save writes cfg to the given path, creating parent dirs as needed.
func Save(path string, cfg any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
