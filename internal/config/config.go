// Package config loads process-wide settings for the boxes tool from a
// JSONC file with environment-variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"
)

// Config holds process-wide settings.
type Config struct {
	// ServerURL is the box server used to expand owner/name shorthands.
	// Empty by default: shorthands are unusable until it is set.
	ServerURL string `json:"server_url"`

	// StoreRoot is the directory installed boxes live under.
	StoreRoot string `json:"store_root"`

	// FetchTimeoutSeconds bounds each metadata or artifact fetch.
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds"`

	// MaxRetries bounds retries on rate-limit and server errors.
	MaxRetries int `json:"max_retries"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		StoreRoot:           filepath.Join(home, ".boxes"),
		FetchTimeoutSeconds: 600,
		MaxRetries:          3,
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "boxes", "config.jsonc")
}

// Load reads the JSONC config file at path on top of the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// defaults apply
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BOXES_SERVER"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("BOXES_STORE_ROOT"); v != "" {
		c.StoreRoot = v
	}
	if v := os.Getenv("BOXES_FETCH_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.FetchTimeoutSeconds = n
		}
	}
}

// FetchTimeout returns the fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}
