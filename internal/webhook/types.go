package webhook

import (
	"errors"
)

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks github.com/LordAkkarin/DeadCodeBot/internal/webhook Sender

// Sender delivers one formatted line to an IRC channel.
type Sender interface {
	Send(channel, text string) error
}

// ErrFeatureDisabled is returned for requests to a provider that has been
// switched off in configuration.
var ErrFeatureDisabled = errors.New("feature disabled")

// Config holds the gateway configuration.
type Config struct {
	// Listen is the host:port the HTTP server binds.
	Listen string

	// Channel receives every formatted line.
	Channel string

	// MaxBodySize is the maximum accepted request body in bytes (default: 1MB).
	MaxBodySize int64

	GitHub           GitHubConfig
	AtlassianConnect ConnectConfig

	// Metrics exposes /metrics when a registry is supplied via WithMetrics.
	Metrics bool
}

// GitHubConfig controls the GitHub endpoint.
type GitHubConfig struct {
	Enabled bool
	Secret  string
	Path    string
}

// ConnectConfig controls the JIRA endpoints.
type ConnectConfig struct {
	Enabled bool
}

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	IRCState string `json:"irc_state"`
}

// Request headers read by the gateway.
const (
	HeaderSignature     = "X-Hub-Signature"
	HeaderGitHubEvent   = "X-GitHub-Event"
	HeaderGitHubDeliver = "X-GitHub-Delivery"
	HeaderAuthorization = "Authorization"
)

// Default values
const (
	DefaultMaxBodySize = 1048576 // 1 MB
	DefaultGitHubPath  = "/github"
	JiraPath           = "/jira"
	InstallationPath   = "/jira/installation"
)

// Response bodies.
const (
	bodyOK               = "OK"
	bodyNoSignature      = "Access Denied: No Signature"
	bodyInvalidSignature = "Access Denied: Invalid Signature"
	bodyMissingAuth      = "Access Denied: Missing Authorization"
	bodyMissingEvent     = "Error: Missing event name"
	bodyInvalidData      = "Error: Invalid data received."
	bodyNotConnected     = "Error: Not connected"
	bodyPayloadTooLarge  = "Error: Payload too large"
	bodyInternal         = "Error: Internal error"
	bodyNotFound         = "Not Found"
	bodyAlreadyInstalled = "Error: Already installed"
)
