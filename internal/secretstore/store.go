// Package secretstore provides encrypt/decrypt-by-reference storage for
// agent credentials. Callers hold only opaque references; plaintext exists
// transiently in memory around Put and Get.
package secretstore

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned when no secret exists for a reference.
var ErrSecretNotFound = errors.New("secret not found")

// Store is the secret store contract.
type Store interface {
	// Put encrypts and stores the plaintext and returns an opaque reference.
	Put(ctx context.Context, plaintext string) (string, error)

	// Get resolves a reference back to plaintext.
	Get(ctx context.Context, ref string) (string, error)

	// Delete releases the secret behind the reference. Deleting an unknown
	// reference is a no-op.
	Delete(ctx context.Context, ref string) error
}
