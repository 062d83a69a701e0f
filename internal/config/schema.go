package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	LogLevel  string          `yaml:"log-level"`
	Store     string          `yaml:"store"`
	SSH       SSHConfig       `yaml:"ssh"`
	Preflight PreflightConfig `yaml:"preflight"`
	Generate  []string        `yaml:"generate"`
}

// SSHConfig holds remote session timeouts
type SSHConfig struct {
	ConnectTimeout Duration `yaml:"connect-timeout"`
	CommandTimeout Duration `yaml:"command-timeout"`
}

// PreflightConfig controls the reachability scan before generate
type PreflightConfig struct {
	Enabled bool     `yaml:"enabled"`
	Timeout Duration `yaml:"timeout"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
