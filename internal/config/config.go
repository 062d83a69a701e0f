// Package config provides the tool's own settings.
//
// The config file holds operator preferences that apply across network
// definitions: log level, inventory store, SSH timeouts, preflight and
// the default service selection. Settings never appear in a definition.
//
// Config file locations (priority order):
//  1. $NSCT_CONFIG
//  2. ./nsct.yaml
//  3. $XDG_CONFIG_HOME/nsct/config.yaml
//  4. ~/.config/nsct/config.yaml
//  5. /etc/nsct/config.yaml
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"nsct/internal/server"
)

// GenerateAll selects every service category
const GenerateAll = "all"

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, path, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}

// Parse decodes config text, rejecting unknown keys, and fills defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the settings used when no config file exists
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SSH.ConnectTimeout == 0 {
		c.SSH.ConnectTimeout = Duration(30 * time.Second)
	}
	if c.SSH.CommandTimeout == 0 {
		c.SSH.CommandTimeout = Duration(2 * time.Minute)
	}
	if c.Preflight.Timeout == 0 {
		c.Preflight.Timeout = Duration(30 * time.Second)
	}
	if len(c.Generate) == 0 {
		c.Generate = []string{GenerateAll}
	}
}

// Validate checks values the YAML decoder cannot
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := ParseCategories(c.Generate); err != nil {
		return err
	}
	for name, d := range map[string]Duration{
		"ssh.connect-timeout": c.SSH.ConnectTimeout,
		"ssh.command-timeout": c.SSH.CommandTimeout,
		"preflight.timeout":   c.Preflight.Timeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// Categories returns the selected service categories. An empty result
// means every category.
func (c *Config) Categories() []server.Category {
	cats, _ := ParseCategories(c.Generate)
	return cats
}

// ParseCategories validates a service selection. "all" anywhere in names
// selects every category and yields an empty result.
func ParseCategories(names []string) ([]server.Category, error) {
	var out []server.Category
	for _, name := range names {
		if name == GenerateAll {
			return nil, nil
		}
		cat, ok := server.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("unknown service category '%s'", name)
		}
		out = append(out, cat)
	}
	return out, nil
}
