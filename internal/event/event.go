// Package event decodes verified webhook bodies into typed events.
//
// Decoding never happens before a request's signature has been checked; the
// webhook gateway is the only caller and enforces that order.
package event

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Provider identifies the service a webhook came from.
type Provider string

const (
	// SourceHost is the GitHub webhook integration.
	SourceHost Provider = "source-host"
	// Tracker is the JIRA (Atlassian Connect) integration.
	Tracker Provider = "tracker"
)

// snippetLimit bounds how much of a rejected body is kept for diagnostics.
const snippetLimit = 256

var (
	// ErrMalformedPayload is matched by every decode failure caused by the body.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrMissingKind is returned when a GitHub delivery carries no event name.
	ErrMissingKind = errors.New("missing event kind")
)

// MalformedPayloadError carries diagnostic context for an undecodable body.
// Snippet is for operator logs only and must never be sent back to a caller.
type MalformedPayloadError struct {
	Provider Provider
	Snippet  string
	Reason   string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("%s payload from %s: %s", ErrMalformedPayload, e.Provider, e.Reason)
}

// Is lets errors.Is match ErrMalformedPayload.
func (e *MalformedPayloadError) Is(target error) bool {
	return target == ErrMalformedPayload
}

// Payload is a decoded JSON tree addressed by gjson paths ("issue.fields.summary").
type Payload struct {
	root gjson.Result
}

// Get returns the value at path; missing paths yield a zero Result.
func (p Payload) Get(path string) gjson.Result {
	return p.root.Get(path)
}

// String returns the value at path as a string, or "" when absent.
func (p Payload) String(path string) string {
	return p.root.Get(path).String()
}

// Has reports whether path exists in the payload.
func (p Payload) Has(path string) bool {
	return p.root.Get(path).Exists()
}

// Verified is an event whose request passed signature verification and whose
// body decoded successfully.
type Verified struct {
	Provider Provider
	Kind     string
	Payload  Payload
}

// Decode parses body for provider. For SourceHost the event kind is supplied
// out-of-band (the X-GitHub-Event header); for Tracker it is read from the
// payload's webhookEvent field and kindHint is ignored.
func Decode(provider Provider, kindHint string, body []byte) (Verified, error) {
	if provider == SourceHost && kindHint == "" {
		return Verified{}, ErrMissingKind
	}

	root, err := parse(provider, body)
	if err != nil {
		return Verified{}, err
	}

	kind := kindHint
	if provider == Tracker {
		kind = root.Get("webhookEvent").String()
	}

	return Verified{
		Provider: provider,
		Kind:     kind,
		Payload:  Payload{root: root},
	}, nil
}

// Installation is the Atlassian Connect installation handshake body.
type Installation struct {
	SharedSecret string
	ClientKey    string
	BaseURL      string
}

// DecodeInstallation parses an installation request. A body without a
// sharedSecret is malformed.
func DecodeInstallation(body []byte) (Installation, error) {
	root, err := parse(Tracker, body)
	if err != nil {
		return Installation{}, err
	}

	inst := Installation{
		SharedSecret: root.Get("sharedSecret").String(),
		ClientKey:    root.Get("clientKey").String(),
		BaseURL:      root.Get("baseUrl").String(),
	}
	if inst.SharedSecret == "" {
		return Installation{}, &MalformedPayloadError{
			Provider: Tracker,
			Reason:   "sharedSecret is missing",
		}
	}
	return inst, nil
}

func parse(provider Provider, body []byte) (gjson.Result, error) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return gjson.Result{}, &MalformedPayloadError{
			Provider: provider,
			Snippet:  truncate(body),
			Reason:   "body is not valid JSON",
		}
	}
	return gjson.ParseBytes(body), nil
}

func truncate(body []byte) string {
	if len(body) <= snippetLimit {
		return string(body)
	}
	return string(body[:snippetLimit]) + "..."
}
