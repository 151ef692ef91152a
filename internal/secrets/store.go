// Package secrets seals tenant provider API keys at rest. Keys are
// encrypted with AES-GCM under a server master key and stored per
// (tenant, provider); plaintext exists only in memory while a job runs.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// Common errors
var (
	ErrNotConfigured = errors.New("no credential configured for provider")
	ErrBadMasterKey  = errors.New("master key must not be empty")
	ErrCorrupt       = errors.New("stored credential is corrupt")
)

// Store seals and unseals provider credentials for tenants.
type Store struct {
	aead cipher.AEAD
	repo *storage.CredentialRepository
}

// NewStore derives the sealing key from the master key material and wires
// the credential repository. Any non-empty master key works; it is hashed
// to the AES-256 key size.
func NewStore(masterKey string, repo *storage.CredentialRepository) (*Store, error) {
	if masterKey == "" {
		return nil, ErrBadMasterKey
	}
	sum := sha256.Sum256([]byte(masterKey))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Store{aead: aead, repo: repo}, nil
}

// Save seals the API key and replaces any previous credential for the
// (tenant, provider) pair.
func (s *Store) Save(ctx context.Context, tenantID uuid.UUID, provider, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("api key must not be empty")
	}
	sealed, err := s.seal(apiKey)
	if err != nil {
		return err
	}
	cred := &storage.Credential{
		TenantID:   tenantID,
		Provider:   provider,
		Ciphertext: sealed,
		KeyHint:    keyHint(apiKey),
	}
	return s.repo.Save(ctx, cred)
}

// Resolve returns the plaintext API key for a (tenant, provider) pair.
func (s *Store) Resolve(ctx context.Context, tenantID uuid.UUID, provider string) (string, error) {
	cred, err := s.repo.Get(ctx, tenantID, provider)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotConfigured, provider)
	}
	if err != nil {
		return "", err
	}
	return s.open(cred.Ciphertext)
}

// List returns the tenant's configured providers with key hints only.
func (s *Store) List(ctx context.Context, tenantID uuid.UUID) ([]*storage.Credential, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

// Delete removes the credential for a (tenant, provider) pair.
func (s *Store) Delete(ctx context.Context, tenantID uuid.UUID, provider string) error {
	return s.repo.Delete(ctx, tenantID, provider)
}

func (s *Store) seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Store) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrCorrupt
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(plaintext), nil
}

// keyHint keeps the last four characters so operators can tell keys apart
// without seeing them.
func keyHint(apiKey string) string {
	if len(apiKey) <= 4 {
		return "****"
	}
	return "..." + apiKey[len(apiKey)-4:]
}
