// Package crypto provides the AES-GCM helpers used to keep cached session
// principals opaque at rest in the key-value store. Ciphertexts are
// self-contained: the random nonce is prepended, so a stored entry can be
// decrypted with nothing but the key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKeySize       = errors.New("invalid AES key size (must be 16, 24, or 32 bytes)")
	ErrInvalidCiphertext    = errors.New("ciphertext too short to contain nonce")
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
)

// NewAESGCM builds an AEAD from the raw key. The key length selects
// AES-128/192/256.
func NewAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeySize, err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns
// nonce||ciphertext.
func Encrypt(aead cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...), nil
}

// Decrypt opens a nonce||ciphertext value produced by Encrypt. A wrong key
// or a tampered entry surfaces as ErrAuthenticationFailed.
func Decrypt(aead cipher.AEAD, value []byte) ([]byte, error) {
	nonceSize := aead.NonceSize()
	if len(value) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	plaintext, err := aead.Open(nil, value[:nonceSize], value[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}
