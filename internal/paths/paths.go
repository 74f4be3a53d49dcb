// Package paths resolves where grouparchive keeps its config and logs.
package paths

import (
	"os"
	"path/filepath"
)

// ConfigEnv overrides the config file location.
const ConfigEnv = "GROUPARCHIVE_CONFIG"

// BaseDir returns ~/.grouparchive.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".grouparchive")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the log file for a command.
func LogPath(command string) string {
	return filepath.Join(LogDir(), command+".log")
}

// DefaultConfigPath returns the global config file path.
func DefaultConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// ResolveConfig determines the config file using precedence:
// 1. flagOverride (--config flag)
// 2. $GROUPARCHIVE_CONFIG
// 3. ~/.grouparchive/config.toml
func ResolveConfig(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv(ConfigEnv); env != "" {
		return env
	}
	return DefaultConfigPath()
}
