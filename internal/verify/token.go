package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/LordAkkarin/DeadCodeBot/internal/secret"
)

const tokenScheme = "JWT "

// SecretSource supplies the provisioned shared secret.
type SecretSource interface {
	Get(ctx context.Context) (string, error)
}

// Token verifies Atlassian Connect "Authorization: JWT <token>" headers.
type Token struct {
	Secrets SecretSource
}

// Verify checks the token's HS256 signature under the stored shared secret.
// Registered time claims (exp, nbf) are enforced when present.
func (t Token) Verify(ctx context.Context, authorization string) error {
	raw := strings.TrimSpace(authorization)
	if raw == "" {
		return ErrMissingCredential
	}
	if len(raw) >= len(tokenScheme) && strings.EqualFold(raw[:len(tokenScheme)], tokenScheme) {
		raw = strings.TrimSpace(raw[len(tokenScheme):])
	}

	key, err := t.Secrets.Get(ctx)
	if errors.Is(err, secret.ErrNotFound) {
		return ErrNotProvisioned
	}
	if err != nil {
		return fmt.Errorf("read shared secret: %w", err)
	}

	_, err = jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}
