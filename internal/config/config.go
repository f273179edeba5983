// Package config handles TOML-based configuration loading and validation.
// The file is parsed as data only; nothing in it is executed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vidgate/internal/httputil"
	"vidgate/internal/provider"
)

// Config holds all application configuration.
type Config struct {
	Listen string `toml:"listen"`
	// PublicBase prefixes proxied URLs handed to clients, e.g.
	// "https://media.example.net". Empty yields relative "/proxy?..." URLs.
	PublicBase   string `toml:"public_base"`
	UserAgent    string `toml:"user_agent"`
	Debug        bool   `toml:"debug"`
	LogLevel     string `toml:"log_level"`
	LogJSON      bool   `toml:"log_json"`
	AllowPrivate bool   `toml:"allow_private"`

	Resolver  Resolver           `toml:"resolver"`
	Cache     Cache              `toml:"cache"`
	Providers []provider.Profile `toml:"providers"`
}

// Resolver tunes the fallback chain.
type Resolver struct {
	PageTimeout      time.Duration `toml:"page_timeout"`
	AuxTimeout       time.Duration `toml:"aux_timeout"`
	MaxIframes       int           `toml:"max_iframes"`
	MaxScripts       int           `toml:"max_scripts"`
	ProbeConcurrency int           `toml:"probe_concurrency"`
	Exhaustive       bool          `toml:"exhaustive"`
	RatePerSecond    float64       `toml:"rate_per_second"`
	Burst            int           `toml:"burst"`
}

// Cache sizes the media cache.
type Cache struct {
	MaxBytes       int64         `toml:"max_bytes"`
	MaxObjectBytes int64         `toml:"max_object_bytes"`
	PlaylistTTL    time.Duration `toml:"playlist_ttl"`
	MediaTTL       time.Duration `toml:"media_ttl"`
	MinTTL         time.Duration `toml:"min_ttl"`
	SweepInterval  time.Duration `toml:"sweep_interval"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
		Resolver: Resolver{
			PageTimeout:      15 * time.Second,
			AuxTimeout:       6 * time.Second,
			MaxIframes:       3,
			MaxScripts:       5,
			ProbeConcurrency: 3,
			RatePerSecond:    10,
			Burst:            20,
		},
		Cache: Cache{
			MaxBytes:       1 << 30,
			MaxObjectBytes: 50 << 20,
			PlaylistTTL:    2 * time.Minute,
			MediaTTL:       30 * time.Minute,
			MinTTL:         60 * time.Second,
			SweepInterval:  time.Minute,
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vidgate"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vidgate"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at the default location and merges it with
// defaults. If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Default(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config file at path and merges it with defaults.
// A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	if c.PublicBase != "" {
		if err := httputil.ValidateURL(c.PublicBase); err != nil {
			return fmt.Errorf("public_base: %w", err)
		}
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("unsupported log_level %q (valid: trace, debug, info, warn, error)", c.LogLevel)
	}

	r := c.Resolver
	if r.PageTimeout <= 0 || r.PageTimeout > time.Minute {
		return fmt.Errorf("resolver.page_timeout %s out of range (0, 1m]", r.PageTimeout)
	}
	if r.AuxTimeout < 3*time.Second || r.AuxTimeout > 8*time.Second {
		return fmt.Errorf("resolver.aux_timeout %s out of range [3s, 8s]", r.AuxTimeout)
	}
	if r.MaxIframes < 0 || r.MaxIframes > 10 {
		return fmt.Errorf("resolver.max_iframes %d out of range [0, 10]", r.MaxIframes)
	}
	if r.MaxScripts < 0 || r.MaxScripts > 20 {
		return fmt.Errorf("resolver.max_scripts %d out of range [0, 20]", r.MaxScripts)
	}
	if r.ProbeConcurrency < 1 || r.ProbeConcurrency > 5 {
		return fmt.Errorf("resolver.probe_concurrency %d out of range [1, 5]", r.ProbeConcurrency)
	}
	if r.RatePerSecond <= 0 || r.Burst < 1 {
		return fmt.Errorf("resolver.rate_per_second and resolver.burst must be positive")
	}

	cc := c.Cache
	if cc.MaxBytes <= 0 {
		return fmt.Errorf("cache.max_bytes must be positive")
	}
	if cc.MaxObjectBytes <= 0 || cc.MaxObjectBytes > cc.MaxBytes {
		return fmt.Errorf("cache.max_object_bytes must be in (0, max_bytes]")
	}
	if cc.PlaylistTTL <= 0 || cc.MediaTTL <= 0 || cc.MinTTL <= 0 || cc.SweepInterval <= 0 {
		return fmt.Errorf("cache durations must be positive")
	}

	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name cannot be empty", i)
		}
		if len(p.Hosts) == 0 {
			return fmt.Errorf("provider %q: at least one host is required", p.Name)
		}
		if p.Reliability < 0 || p.Reliability > provider.MaxReliability {
			return fmt.Errorf("provider %q: reliability %d out of range [0, %d]", p.Name, p.Reliability, provider.MaxReliability)
		}
	}

	return nil
}
