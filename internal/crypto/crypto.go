// Package crypto seals configuration secrets (API token, storage secret key)
// with AES-256-GCM under a key bound to the machine identifier.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrInvalidCiphertext is returned when a sealed secret cannot be opened
	// with this machine's key.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrEmptySecret is returned when sealing an empty secret.
	ErrEmptySecret = errors.New("secret cannot be empty")
)

const (
	keySize          = 32
	keyInfo          = "tijara-sync config secret v1"
	defaultMachineID = "tijara-default-key"
)

// machineKey derives the AES-256 key of machineID with HKDF-SHA256.
// An empty id falls back to a fixed default.
func machineKey(machineID string) ([]byte, error) {
	if machineID == "" {
		machineID = defaultMachineID
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(machineID), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive machine key: %w", err)
	}
	return key, nil
}

func machineAEAD(machineID string) (cipher.AEAD, error) {
	key, err := machineKey(machineID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptSecret seals secret for machineID. The result is base64 of
// nonce || ciphertext and differs on every call.
func EncryptSecret(secret, machineID string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	aead, err := machineAEAD(machineID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(secret), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecret opens a secret sealed by EncryptSecret. An empty value
// means no secret is configured and yields "".
func DecryptSecret(encrypted, machineID string) (string, error) {
	if encrypted == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	aead, err := machineAEAD(machineID)
	if err != nil {
		return "", err
	}
	if len(data) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}
