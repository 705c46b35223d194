// Package secret persists the Atlassian Connect shared secret.
//
// The store is a one-way latch: the first PutIfAbsent wins and every later
// attempt fails with ErrAlreadyProvisioned until the stored value is removed
// by an operator.
package secret

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/zeebo/blake3"
)

var (
	// ErrNotFound is returned by Get when nothing has been provisioned.
	ErrNotFound = errors.New("shared secret not provisioned")

	// ErrAlreadyProvisioned is returned by PutIfAbsent when a secret exists.
	ErrAlreadyProvisioned = errors.New("shared secret already provisioned")

	// ErrEmptySecret is returned by PutIfAbsent for an empty value.
	ErrEmptySecret = errors.New("shared secret is empty")
)

// Store holds at most one shared secret.
type Store interface {
	Exists(ctx context.Context) (bool, error)
	Get(ctx context.Context) (string, error)
	// PutIfAbsent stores value only if no secret exists. The check and the
	// write are a single atomic step.
	PutIfAbsent(ctx context.Context, value string) error
}

// Fingerprint returns a short BLAKE3 digest of value, safe to log.
func Fingerprint(value string) string {
	sum := blake3.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}
