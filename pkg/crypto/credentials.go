// Package crypto provides encryption for datasource credentials stored on
// project rows.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when the encryption key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned when decryption fails due to invalid ciphertext or wrong key.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// CredentialEncryptor encrypts and decrypts datasource passwords with
// AES-256-GCM. Stored values are base64(nonce || ciphertext || tag), so a
// tampered row fails authentication instead of yielding garbage.
type CredentialEncryptor struct {
	gcm cipher.AEAD
}

// NewCredentialEncryptor creates an encryptor from a key string. A
// base64-encoded 32-byte value (openssl rand -base64 32) is used as the key
// directly; anything else is treated as a passphrase and hashed with SHA-256.
func NewCredentialEncryptor(keyInput string) (*CredentialEncryptor, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(deriveKey(keyInput))
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{gcm: gcm}, nil
}

// deriveKey turns the configured key string into 32 key bytes.
func deriveKey(keyInput string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(keyInput); err == nil && len(decoded) == 32 {
		return decoded
	}
	hash := sha256.Sum256([]byte(keyInput))
	return hash[:]
}

// Encrypt seals plaintext under a fresh random nonce. Empty strings pass
// through unencrypted, matching how unset passwords are stored.
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Empty strings pass through unchanged.
func (e *CredentialEncryptor) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize+e.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	plaintext, err := e.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}

	return string(plaintext), nil
}
