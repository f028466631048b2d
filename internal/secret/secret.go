package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrDecrypt is returned when a sealed value cannot be opened, either because
// it was tampered with or because it was sealed under a different key.
var ErrDecrypt = errors.New("cannot decrypt sealed value")

// Key seals and opens credentials stored at rest.
type Key [keySize]byte

// LoadOrCreateKey reads the key file at path, generating and persisting a
// fresh key on first use.
func LoadOrCreateKey(path string) (Key, error) {
	var key Key

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != keySize {
			return key, fmt.Errorf("key file %s: unexpected length %d", path, len(data))
		}
		copy(key[:], data)
		return key, nil
	case errors.Is(err, os.ErrNotExist):
		// first run, generate below
	default:
		return key, fmt.Errorf("read key file: %w", err)
	}

	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return key, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, key[:], 0o600); err != nil {
		return key, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext and returns a base64 string safe to store.
func (k Key) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, (*[keySize]byte)(&k))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (k Key) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < nonceSize {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, (*[keySize]byte)(&k))
	if !ok {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
