package doctor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/LordAkkarin/DeadCodeBot/internal/config"
)

func init() {
	color.NoColor = true
}

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Path = "/etc/deadcode/config.yaml"
	cfg.Channel = "#deadcode"
	cfg.Server.Address = "irc.example.net"
	cfg.GitHub.Secret = "s"
	cfg.Integrity = &config.IntegrityResult{Passed: true}
	return cfg
}

func TestValidateClean(t *testing.T) {
	r := New(validConfig()).Validate()
	if !r.Valid || len(r.Warnings) != 0 {
		t.Fatalf("expected clean result, got %+v", r)
	}
	if out := FormatHuman(r); !strings.Contains(out, "Configuration check PASSED.") {
		t.Errorf("FormatHuman() = %q", out)
	}
}

func TestValidateBodySize(t *testing.T) {
	cfg := validConfig()
	cfg.Web.MaxBodySize = "huge"

	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid result")
	}
	if !strings.Contains(r.Errors[0].Message, "max_body_size") {
		t.Errorf("unexpected error %+v", r.Errors[0])
	}
	if out := FormatHuman(r); !strings.Contains(out, "ERROR [web]") {
		t.Errorf("FormatHuman() = %q", out)
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := validConfig()
	cfg.GitHub.Enabled = false
	cfg.Server.AcceptSelfSigned = true
	cfg.NickServ.Enabled = true
	cfg.NickServ.Password = "pw"
	cfg.Integrity.Warnings = []string{"no .checksums manifest"}

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("warnings must not invalidate: %+v", r.Errors)
	}

	categories := map[string]bool{}
	for _, w := range r.Warnings {
		categories[w.Category] = true
	}
	for _, want := range []string{"web", "server", "nickserv", "integrity"} {
		if !categories[want] {
			t.Errorf("missing %s warning in %+v", want, r.Warnings)
		}
	}
}

func TestValidateSecretStore(t *testing.T) {
	dir := t.TempDir()

	cfg := validConfig()
	cfg.AtlassianConnect.Enabled = true
	cfg.AtlassianConnect.SecretPath = filepath.Join(dir, "missing", "connect-secret")
	if r := New(cfg).Validate(); r.Valid {
		t.Fatal("expected error for missing secret directory")
	}

	cfg.AtlassianConnect.SecretPath = filepath.Join(dir, "connect-secret")
	r := New(cfg).Validate()
	if !r.Valid || len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0].Message, "not provisioned") {
		t.Fatalf("unprovisioned: %+v", r)
	}

	if err := os.WriteFile(cfg.AtlassianConnect.SecretPath, []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(cfg.AtlassianConnect.SecretPath, 0o644); err != nil {
		t.Fatal(err)
	}
	r = New(cfg).Validate()
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0].Message, "other users") {
		t.Fatalf("world-readable secret: %+v", r.Warnings)
	}
}

func TestFormatJSON(t *testing.T) {
	cfg := validConfig()
	cfg.Web.MaxBodySize = "huge"

	out, err := FormatJSON(New(cfg).Validate())
	if err != nil {
		t.Fatal(err)
	}

	var decoded Result
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Valid || len(decoded.Errors) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}
