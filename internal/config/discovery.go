package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigPath overrides config discovery.
const EnvConfigPath = "DEADCODE_CONFIG"

// Discover finds the configuration file by checking standard locations.
// Priority order: $DEADCODE_CONFIG, ./config.yaml, ~/.config/deadcode/config.yaml,
// /etc/deadcode/config.yaml.
func Discover() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("$%s points to %s: %w", EnvConfigPath, path, err)
		}
		return path, nil
	}

	for _, candidate := range candidatePaths() {
		if fileExists(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no config found (checked: $%s, ./config.yaml, ~/.config/deadcode/config.yaml, /etc/deadcode/config.yaml)", EnvConfigPath)
}

func candidatePaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "deadcode", "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", "deadcode", "config.yaml"))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
