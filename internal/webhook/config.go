package webhook

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/LordAkkarin/DeadCodeBot/internal/config"
)

// FromGlobalConfig converts the loaded configuration into gateway settings.
// Parses the body size limit and normalises the GitHub path.
func FromGlobalConfig(c *config.Config) (Config, error) {
	if c == nil {
		return Config{}, fmt.Errorf("config is nil")
	}

	maxBodySize, err := parseMaxBodySize(c.Web.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("web: invalid max_body_size %q: %w", c.Web.MaxBodySize, err)
	}

	path := c.GitHub.Path
	if path == "" {
		path = DefaultGitHubPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if c.GitHub.Enabled && (path == JiraPath || path == InstallationPath || path == "/healthz" || path == "/metrics") {
		return Config{}, fmt.Errorf("github: path %q collides with a built-in route", path)
	}

	return Config{
		Listen:      net.JoinHostPort(c.Web.Address, strconv.Itoa(c.Web.Port)),
		Channel:     c.Channel,
		MaxBodySize: maxBodySize,
		GitHub: GitHubConfig{
			Enabled: c.GitHub.Enabled,
			Secret:  c.GitHub.Secret,
			Path:    path,
		},
		AtlassianConnect: ConnectConfig{
			Enabled: c.AtlassianConnect.Enabled,
		},
		Metrics: c.Service.Metrics,
	}, nil
}

// parseMaxBodySize parses size strings like "1MB", "512KB", "1048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	case strings.HasSuffix(upper, "B"):
		upper = strings.TrimSuffix(upper, "B")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
