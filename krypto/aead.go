package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
)

// Suite names an AEAD construction recorded in the vault header.
type Suite string

const (
	SuiteAESGCM  Suite = "aes-256-gcm"
	SuiteXChaCha Suite = "xchacha20-poly1305"
	DefaultSuite Suite = SuiteAESGCM
)

// ErrUnknownSuite is returned for a cipher name this build does not implement.
var ErrUnknownSuite = errors.New("unknown cipher suite")

// ParseSuite maps a header or config value to a Suite.
func ParseSuite(name string) (Suite, error) {
	switch Suite(name) {
	case SuiteAESGCM, SuiteXChaCha:
		return Suite(name), nil
	case "":
		return DefaultSuite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSuite, name)
}

// NonceSize returns the nonce length used by the suite.
func (s Suite) NonceSize() int {
	if s == SuiteXChaCha {
		return chacha20poly1305.NonceSizeX
	}
	return 12
}

func (s Suite) newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLengthBytes {
		return nil, fmt.Errorf("%s requires a %d-byte key", s, KeyLengthBytes)
	}
	switch s {
	case SuiteAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create gcm: %w", err)
		}
		return gcm, nil
	case SuiteXChaCha:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("create xchacha20-poly1305: %w", err)
		}
		return aead, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSuite, string(s))
}

// NewNonce draws a fresh nonce for the suite from crypto/rand.
func NewNonce(s Suite) ([]byte, error) {
	nonce := make([]byte, s.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// Seal encrypts plaintext under key and nonce, returning ciphertext with the
// tag appended. The caller owns nonce uniqueness.
func Seal(s Suite, key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := s.newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts. Any tag mismatch is an authentication
// error and no plaintext is returned.
func Open(s Suite, key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := s.newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}
	if len(ciphertext) < aead.Overhead() {
		return nil, vaulterr.E("decrypt", vaulterr.ErrAuthentication, nil)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, vaulterr.E("decrypt", vaulterr.ErrAuthentication, nil)
	}
	return plaintext, nil
}
