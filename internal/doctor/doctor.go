// Package doctor validates relay configuration beyond what loading enforces.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/LordAkkarin/DeadCodeBot/internal/config"
	"github.com/LordAkkarin/DeadCodeBot/internal/webhook"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Path     string  `json:"path,omitempty"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true, Path: d.cfg.Path}

	d.validateWebhooks(r)
	d.validateSecretStore(r)
	d.warnIntegrity(r)
	d.warnNoProviders(r)
	d.warnRelaxedTLS(r)
	d.warnPlaintextNickServ(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateWebhooks builds the gateway settings the way start does.
func (d *Doctor) validateWebhooks(r *Result) {
	if _, err := webhook.FromGlobalConfig(d.cfg); err != nil {
		d.addError(r, "web", "", err.Error())
	}
}

// validateSecretStore checks the Atlassian Connect secret location.
func (d *Doctor) validateSecretStore(r *Result) {
	ac := d.cfg.AtlassianConnect
	if !ac.Enabled {
		return
	}
	field := "atlassian_connect.secret_path"

	dir := filepath.Dir(ac.SecretPath)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		if ac.SecretStore == config.SecretStoreSQLite {
			d.addWarning(r, "atlassian_connect", field, fmt.Sprintf("directory %s will be created on start", dir))
		} else {
			d.addError(r, "atlassian_connect", field, fmt.Sprintf("directory %s does not exist", dir))
		}
		return
	}

	info, err := os.Stat(ac.SecretPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		d.addWarning(r, "atlassian_connect", field, "not provisioned yet; the first installation request will be accepted")
	case err != nil:
		d.addError(r, "atlassian_connect", field, err.Error())
	case ac.SecretStore == config.SecretStoreFile && info.Mode().Perm()&0o077 != 0:
		d.addWarning(r, "atlassian_connect", field,
			fmt.Sprintf("shared secret file is accessible by other users (mode %o)", info.Mode().Perm()))
	}
}

func (d *Doctor) warnIntegrity(r *Result) {
	if d.cfg.Integrity == nil {
		return
	}
	for _, w := range d.cfg.Integrity.Warnings {
		d.addWarning(r, "integrity", "", w)
	}
}

func (d *Doctor) warnNoProviders(r *Result) {
	if !d.cfg.GitHub.Enabled && !d.cfg.AtlassianConnect.Enabled {
		d.addWarning(r, "web", "", "github and atlassian_connect are both disabled; nothing will be relayed")
	}
}

func (d *Doctor) warnRelaxedTLS(r *Result) {
	s := d.cfg.Server
	if !s.Secure {
		if s.AcceptExpired || s.AcceptSelfSigned {
			d.addWarning(r, "server", "server.secure", "certificate options have no effect without secure: true")
		}
		return
	}
	if s.AcceptSelfSigned {
		d.addWarning(r, "server", "server.accept_self_signed", "self-signed server certificates are accepted")
	}
	if s.AcceptExpired {
		d.addWarning(r, "server", "server.accept_expired", "expired server certificates are accepted")
	}
}

func (d *Doctor) warnPlaintextNickServ(r *Result) {
	if d.cfg.NickServ.Enabled && !d.cfg.Server.Secure {
		d.addWarning(r, "nickserv", "nickserv.password", "NickServ password is sent over an unencrypted connection")
	}
}

// FormatHuman renders r for a terminal.
func FormatHuman(r *Result) string {
	var b strings.Builder

	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	if r.Path != "" {
		fmt.Fprintf(&b, "Config: %s\n", r.Path)
	}

	for _, e := range r.Errors {
		writeIssue(&b, bad("ERROR"), e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, warn("WARN "), w)
	}

	if r.Valid {
		fmt.Fprintf(&b, "Status: %s\n", ok("Configuration check PASSED."))
	} else {
		fmt.Fprintf(&b, "Status: %s\n", bad("Configuration check FAILED."))
	}

	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON renders r as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
