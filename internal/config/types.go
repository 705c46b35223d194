package config

import "time"

// Config represents the complete relay configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`

	Nickname string `yaml:"nickname"`
	Username string `yaml:"username"`
	Realname string `yaml:"realname"`
	Channel  string `yaml:"channel"`

	Server           ServerConfig           `yaml:"server"`
	NickServ         NickServConfig         `yaml:"nickserv"`
	GitHub           GitHubConfig           `yaml:"github"`
	AtlassianConnect AtlassianConnectConfig `yaml:"atlassian_connect"`
	Web              WebConfig              `yaml:"web"`

	// Path is the absolute file the configuration was loaded from.
	Path string `yaml:"-"`
	// Integrity is the checksum verification outcome for Path.
	Integrity *IntegrityResult `yaml:"-"`
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	PIDFile   string `yaml:"pid_file"`
	Metrics   bool   `yaml:"metrics"`
}

// ServerConfig describes the IRC server connection.
type ServerConfig struct {
	Address          string        `yaml:"address"`
	Port             int           `yaml:"port"`
	Secure           bool          `yaml:"secure"`
	AcceptExpired    bool          `yaml:"accept_expired"`
	AcceptSelfSigned bool          `yaml:"accept_self_signed"`
	UserModes        string        `yaml:"user_modes"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
}

// NickServConfig controls identification after connecting.
type NickServConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Command  string `yaml:"command"`
}

// GitHubConfig controls the GitHub webhook endpoint.
type GitHubConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
	Path    string `yaml:"path"`
}

// Secret store backends for the Atlassian Connect shared secret.
const (
	SecretStoreFile   = "file"
	SecretStoreSQLite = "sqlite"
)

// AtlassianConnectConfig controls the JIRA endpoints and where the shared
// secret is persisted.
type AtlassianConnectConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SecretStore string `yaml:"secret_store"`
	SecretPath  string `yaml:"secret_path"`
}

// WebConfig controls the HTTP listener.
type WebConfig struct {
	Address     string `yaml:"address"`
	Port        int    `yaml:"port"`
	MaxBodySize string `yaml:"max_body_size"`
}

// ChecksumManifest is the on-disk .checksums format.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// IntegrityResult collects checksum verification findings.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}

// Defaults returns a Config with the relay's defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel:  "info",
			LogFormat: "json",
			PIDFile:   "./data/deadcode.pid",
		},
		Nickname: "DeadCode",
		Username: "deadcode",
		Realname: "DeadCode Bot",
		Server: ServerConfig{
			Port:          6667,
			RetryInterval: 2 * time.Second,
		},
		GitHub: GitHubConfig{
			Enabled: true,
			Path:    "/github",
		},
		AtlassianConnect: AtlassianConnectConfig{
			Enabled:     false,
			SecretStore: SecretStoreFile,
			SecretPath:  "./connect-secret",
		},
		Web: WebConfig{
			Address:     "0.0.0.0",
			Port:        8080,
			MaxBodySize: "1MB",
		},
	}
}
