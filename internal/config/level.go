package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// EnvLogLevel overrides the configured log level
const EnvLogLevel = "NSCT_LOG"

// ParseLevel converts a log-level name to a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log-level '%s'", name)
}

// ParseLogEnv converts a NSCT_LOG value: 0 is warn, 1 is info, 2 is debug.
func ParseLogEnv(value string) (slog.Level, error) {
	switch value {
	case "0":
		return slog.LevelWarn, nil
	case "1":
		return slog.LevelInfo, nil
	case "2":
		return slog.LevelDebug, nil
	}
	return 0, fmt.Errorf("%s must be 0, 1 or 2, not '%s'", EnvLogLevel, value)
}

// Level returns the effective log level, honouring NSCT_LOG through getenv
func (c *Config) Level(getenv func(string) string) (slog.Level, error) {
	if v := getenv(EnvLogLevel); v != "" {
		return ParseLogEnv(v)
	}
	return ParseLevel(c.LogLevel)
}
