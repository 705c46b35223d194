package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, verifies and validates the configuration file at configPath.
// A directory is accepted and resolved to its config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	integrity, err := VerifyIntegrity(absPath)
	if err != nil {
		return nil, err
	}
	if !integrity.Passed {
		return nil, fmt.Errorf("config integrity check failed: %s\n"+
			"If you edited this file intentionally, run: deadcode config lock", strings.Join(integrity.Errors, "; "))
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.Path = absPath
	cfg.Integrity = integrity

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadConfigFile decodes path on top of Defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with the environment value. Unset variables
// are left in place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if strings.TrimSpace(cfg.Nickname) == "" {
		return fmt.Errorf("nickname is required")
	}
	if strings.ContainsAny(cfg.Nickname, " ,*?!@") {
		return fmt.Errorf("nickname %q contains characters IRC does not allow", cfg.Nickname)
	}
	if cfg.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if !strings.ContainsAny(cfg.Channel[:1], "#&+!") || strings.ContainsAny(cfg.Channel, " ,\a") {
		return fmt.Errorf("channel %q is not a valid IRC channel name", cfg.Channel)
	}

	if cfg.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", cfg.Server.Port)
	}
	if cfg.Server.RetryInterval <= 0 {
		return fmt.Errorf("server.retry_interval must be positive")
	}

	if cfg.NickServ.Enabled && cfg.NickServ.Password == "" {
		return fmt.Errorf("nickserv.password is required when nickserv is enabled")
	}

	if cfg.GitHub.Enabled && cfg.GitHub.Secret == "" {
		return fmt.Errorf("github.secret is required when github is enabled")
	}

	if cfg.AtlassianConnect.Enabled {
		switch cfg.AtlassianConnect.SecretStore {
		case SecretStoreFile, SecretStoreSQLite:
		default:
			return fmt.Errorf("atlassian_connect.secret_store must be %q or %q (got %q)",
				SecretStoreFile, SecretStoreSQLite, cfg.AtlassianConnect.SecretStore)
		}
		if cfg.AtlassianConnect.SecretPath == "" {
			return fmt.Errorf("atlassian_connect.secret_path is required")
		}
	}

	if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
		return fmt.Errorf("web.port must be between 1 and 65535 (got %d)", cfg.Web.Port)
	}

	// Secrets must never reach the process as unexpanded placeholders.
	for field, value := range map[string]string{
		"github.secret":     cfg.GitHub.Secret,
		"nickserv.password": cfg.NickServ.Password,
		"nickserv.username": cfg.NickServ.Username,
	} {
		if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
			return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
		}
	}

	return nil
}
