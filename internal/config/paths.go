package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "NSCT_CONFIG"
	// ConfigFileName is the config file name looked up in the working directory
	ConfigFileName = "nsct.yaml"
	// ConfigDirName is the config directory name under XDG
	ConfigDirName = "nsct"
)

// FindConfigPath searches for config file in priority order:
// 1. $NSCT_CONFIG (explicit path)
// 2. ./nsct.yaml (working directory)
// 3. $XDG_CONFIG_HOME/nsct/config.yaml
// 4. ~/.config/nsct/config.yaml
// 5. /etc/nsct/config.yaml
//
// Returns empty string if no config file found
func FindConfigPath() string {
	return findConfigPath(os.Getenv, "/etc")
}

func findConfigPath(getenv func(string) string, etc string) string {
	// 1. Explicit environment variable
	if path := getenv(EnvConfigPath); path != "" {
		if fileExists(path) {
			return path
		}
	}

	// 2. Working directory
	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}

	// 3. XDG config home
	if xdgHome := getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		path := filepath.Join(xdgHome, ConfigDirName, "config.yaml")
		if fileExists(path) {
			return path
		}
	}

	// 4. Default XDG location (~/.config)
	if home := getenv("HOME"); home != "" {
		path := filepath.Join(home, ".config", ConfigDirName, "config.yaml")
		if fileExists(path) {
			return path
		}
	}

	// 5. System-wide
	systemPath := filepath.Join(etc, ConfigDirName, "config.yaml")
	if fileExists(systemPath) {
		return systemPath
	}

	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
