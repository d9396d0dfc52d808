// Package cryptox seals outbox payloads at rest with AES-GCM under a key
// derived from an operator passphrase.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// ErrShortCiphertext is returned by Open when data cannot hold a nonce.
var ErrShortCiphertext = errors.New("ciphertext too short")

// DeriveKey stretches a passphrase into a 32-byte AES-256 key with Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// Fingerprint identifies a key without revealing it, e.g. in logs.
func Fingerprint(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:8]
}

// Sealer encrypts and decrypts small blobs with one AES-GCM key.
// It is safe for concurrent use.
type Sealer struct {
	aead  cipher.AEAD
	keyID string
}

// NewSealer returns a Sealer for key, which must be 16, 24 or 32 bytes.
func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Sealer{aead: aead, keyID: hex.EncodeToString(Fingerprint(key))}, nil
}

// KeyID is the hex fingerprint of the sealing key.
func (s *Sealer) KeyID() string { return s.keyID }

// NewPassphraseSealer derives the key from passphrase and salt.
func NewPassphraseSealer(passphrase, salt string) (*Sealer, error) {
	return NewSealer(DeriveKey([]byte(passphrase), []byte(salt)))
}

// Seal encrypts plaintext under a fresh random nonce and returns
// nonce || ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. Tampered data or a wrong key yields an error.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, ErrShortCiphertext
	}
	plaintext, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed data: %w", err)
	}
	return plaintext, nil
}
