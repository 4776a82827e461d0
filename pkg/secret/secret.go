// Package secret seals short strings such as OAuth tokens for storage at rest.
//
// Values are encrypted with XChaCha20-Poly1305 under a key derived from a
// passphrase with HKDF-SHA256 and encoded as "v1." followed by base64url of
// nonce and ciphertext. Empty strings pass through unchanged so nullable
// columns stay empty.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	version = "v1."
	info    = "quickmailer token encryption"
)

var (
	// ErrEmptyKey is returned when the passphrase is empty.
	ErrEmptyKey = errors.New("secret: empty encryption key")

	// ErrMalformed is returned when a sealed value cannot be decoded.
	ErrMalformed = errors.New("secret: malformed sealed value")

	// ErrDecrypt is returned when authentication of a sealed value fails.
	ErrDecrypt = errors.New("secret: decryption failed")
)

// Config holds the encryption passphrase.
type Config struct {
	Key string `env:"TOKEN_ENCRYPTION_KEY,required"`
}

// Cipher seals and opens strings.
type Cipher struct {
	key []byte
}

// New derives the encryption key from passphrase.
func New(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("secret: derive key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Seal encrypts plaintext.
func (c *Cipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("secret: init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return version + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (c *Cipher) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	encoded, ok := strings.CutPrefix(sealed, version)
	if !ok {
		return "", ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Join(ErrMalformed, err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("secret: init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformed
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Join(ErrDecrypt, err)
	}
	return string(plain), nil
}
