package verify

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// HubSignaturePrefix is the algorithm prefix GitHub puts in X-Hub-Signature.
const HubSignaturePrefix = "sha1="

// HMAC verifies GitHub's X-Hub-Signature header.
type HMAC struct {
	Secret string
}

// Verify checks signature against HMAC-SHA1(secret, body). The sha1= prefix
// is optional and hex digits compare case-insensitively.
func (h HMAC) Verify(body []byte, signature string) error {
	if signature == "" {
		return ErrMissingCredential
	}
	if h.Secret == "" {
		return ErrInvalidSignature
	}

	got, err := hex.DecodeString(stripAlgorithm(signature))
	if err != nil {
		return ErrInvalidSignature
	}

	if !hmac.Equal(got, digest(body, h.Secret)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the X-Hub-Signature value GitHub would send for body.
func Sign(body []byte, secret string) string {
	return HubSignaturePrefix + hex.EncodeToString(digest(body, secret))
}

func digest(body []byte, secret string) []byte {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func stripAlgorithm(signature string) string {
	signature = strings.TrimSpace(signature)
	if len(signature) >= len(HubSignaturePrefix) && strings.EqualFold(signature[:len(HubSignaturePrefix)], HubSignaturePrefix) {
		return signature[len(HubSignaturePrefix):]
	}
	return signature
}
