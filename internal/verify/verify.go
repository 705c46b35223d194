// Package verify authenticates inbound webhooks before their bodies are parsed.
//
// Two policies exist: HMAC-SHA1 over the raw body for GitHub deliveries, and
// HS256-signed tokens for Atlassian Connect requests, keyed by the shared
// secret handed over at installation time.
package verify

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is matched by every verification failure.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMissingCredential means the signature or Authorization header was absent.
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrUnauthorized)

	// ErrInvalidSignature means a credential was supplied but did not verify.
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrUnauthorized)

	// ErrNotProvisioned means no shared secret exists yet, so nothing can verify.
	ErrNotProvisioned = fmt.Errorf("%w: no shared secret provisioned", ErrUnauthorized)
)
