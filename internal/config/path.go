// Package config loads the rule and keyword tables and resolves filesystem locations.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultDatabasePath is where the learned cache lives unless configured otherwise.
const DefaultDatabasePath = "$HOME/.local/share/revfinder/learned.db"

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}

// DatabasePath returns the expanded database path, falling back to DefaultDatabasePath.
// The in-memory DSN ":memory:" is returned untouched.
func DatabasePath(configured string) string {
	if configured == ":memory:" {
		return configured
	}
	if configured == "" {
		configured = DefaultDatabasePath
	}
	return ExpandPath(configured)
}

// ConfigDir returns the directory searched for config.yaml.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "revfinder"), nil
}
