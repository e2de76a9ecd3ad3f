// Package utils provides utility functions for the application.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CredentialCipher seals and opens provider credentials stored at rest.
// It uses XChaCha20-Poly1305 with a random per-record nonce prepended to the
// ciphertext. The key is process-wide configuration and never user-derived.
type CredentialCipher struct {
	key []byte
}

// NewCredentialCipher builds a cipher from a hex-encoded 32-byte key.
func NewCredentialCipher(hexKey string) (*CredentialCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &CredentialCipher{key: key}, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext.
func (c *CredentialCipher) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a nonce||ciphertext record produced by Seal. A wrong key or
// tampered record fails closed with an error, never garbage output.
func (c *CredentialCipher) Open(record []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(record) < aead.NonceSize() {
		return nil, fmt.Errorf("encrypted record too short: %d bytes", len(record))
	}

	nonce, ciphertext := record[:aead.NonceSize()], record[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt record: %w", err)
	}
	return plaintext, nil
}

// SealString encrypts a string credential.
func (c *CredentialCipher) SealString(plaintext string) ([]byte, error) {
	return c.Seal([]byte(plaintext))
}

// OpenString decrypts a record back to a string credential.
func (c *CredentialCipher) OpenString(record []byte) (string, error) {
	b, err := c.Open(record)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
