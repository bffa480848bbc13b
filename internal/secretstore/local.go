package secretstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/agentopia/toolbox/internal/model"
	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"
	"gorm.io/gorm"
)

const (
	keySize   = 32
	nonceSize = 24

	refPrefix = "sec_"
)

// LocalStore implements Store with NaCl secretbox encryption over database
// rows. The sealing key is supplied at startup and never persisted.
type LocalStore struct {
	db  *gorm.DB
	key [keySize]byte
}

// NewLocalStore creates a LocalStore sealing with the given base64-encoded
// 256-bit key.
func NewLocalStore(db *gorm.DB, encodedKey string) (*LocalStore, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret store key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("secret store key must be %d bytes, got %d", keySize, len(raw))
	}

	s := &LocalStore{db: db}
	copy(s.key[:], raw)
	return s, nil
}

// GenerateKey returns a fresh base64-encoded sealing key.
func GenerateKey() (string, error) {
	raw := make([]byte, keySize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate secret store key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (s *LocalStore) Put(_ context.Context, plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// The nonce is prepended to the sealed box.
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)

	record := model.SecretRecord{
		Ref:        refPrefix + uuid.NewString(),
		Ciphertext: sealed,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store secret: %w", err)
	}
	return record.Ref, nil
}

func (s *LocalStore) Get(_ context.Context, ref string) (string, error) {
	var record model.SecretRecord
	if err := s.db.Where("ref = ?", ref).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to load secret: %w", err)
	}

	if len(record.Ciphertext) < nonceSize {
		return "", fmt.Errorf("secret %s has malformed ciphertext", ref)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], record.Ciphertext[:nonceSize])

	plaintext, ok := secretbox.Open(nil, record.Ciphertext[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("failed to open secret %s: wrong key or corrupted data", ref)
	}
	return string(plaintext), nil
}

func (s *LocalStore) Delete(_ context.Context, ref string) error {
	result := s.db.Unscoped().Where("ref = ?", ref).Delete(&model.SecretRecord{})
	return result.Error
}
