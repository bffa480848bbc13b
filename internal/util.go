// Package internal provides internal utility functionality shared across the
// control plane services.
package internal

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateAccessToken generates a 256-bit secure random token, used both for
// agent API access tokens and for per-host bearer secrets.
func GenerateAccessToken() (string, error) {
	const tokenLength = 32
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate access token: %v", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b), nil
}

// MaskSecret returns a masked display identifier for a raw secret, keeping at
// most the last four characters visible.
func MaskSecret(secret string) string {
	const visible = 4
	if len(secret) <= visible {
		return "****"
	}
	return "****" + secret[len(secret)-visible:]
}
