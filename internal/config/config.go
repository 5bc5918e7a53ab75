// Package config loads ~/.bazaar/config.toml, with optional .env files and
// BAZAAR_* environment variables taking precedence over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override the file.
const (
	EnvAPIURL  = "BAZAAR_API_URL"
	EnvWSURL   = "BAZAAR_WS_URL"
	EnvSession = "BAZAAR_SESSION"
	EnvTimeout = "BAZAAR_REQUEST_TIMEOUT"
	EnvZone    = "BAZAAR_BACKEND_TZ"
)

const (
	DefaultAPIURL               = "http://localhost:8080/api"
	DefaultWSURL                = "ws://localhost:8080/ws/chat"
	DefaultRequestTimeout       = 15 * time.Second
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultLogLevel             = "info"
	DefaultBackendZone          = "UTC"
)

// Config represents the global ~/.bazaar/config.toml.
type Config struct {
	DefaultSession       string   `toml:"default_session"`
	APIURL               string   `toml:"api_url"`
	WSURL                string   `toml:"ws_url"`
	RequestTimeout       Duration `toml:"request_timeout"`
	ReconnectInterval    Duration `toml:"reconnect_interval"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	LogLevel             string   `toml:"log_level"`
	BackendZone          string   `toml:"backend_timezone"` // zone of dates the backend sends without an offset
}

// Duration is a time.Duration written as a string ("3s") in TOML.
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

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve builds the effective configuration: defaults, then the file at
// path (if present), then .env files, then the process environment.
func Resolve(path string, envFiles ...string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.applyDefaults()
	return cfg, nil
}

// LoadEnvFiles loads the given .env files into the process environment,
// skipping missing ones. Variables already set are not overridden.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.APIURL = v
	}
	if v, ok := lookup(EnvWSURL); ok && v != "" {
		c.WSURL = v
	}
	if v, ok := lookup(EnvSession); ok && v != "" {
		c.DefaultSession = v
	}
	if v, ok := lookup(EnvZone); ok && v != "" {
		c.BackendZone = v
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout.Duration = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			c.RequestTimeout.Duration = time.Duration(secs) * time.Second
		}
	}
}

func (c *Config) applyDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.WSURL == "" {
		c.WSURL = DefaultWSURL
	}
	if c.RequestTimeout.Duration <= 0 {
		c.RequestTimeout.Duration = DefaultRequestTimeout
	}
	if c.ReconnectInterval.Duration <= 0 {
		c.ReconnectInterval.Duration = DefaultReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.BackendZone == "" {
		c.BackendZone = DefaultBackendZone
	}
}

// BackendLocation loads the zone named by BackendZone.
func (c *Config) BackendLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BackendZone)
	if err != nil {
		return nil, fmt.Errorf("backend_timezone %q: %w", c.BackendZone, err)
	}
	return loc, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
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
