package krypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
)

const (
	// KDFName is the identifier written to the vault header.
	KDFName = "argon2id"
	// SaltLengthBytes is the enforced salt length in bytes.
	SaltLengthBytes = 16
	// KeyLengthBytes is the length of every symmetric key in the vault.
	KeyLengthBytes = 32

	minMemoryMB = 8
	maxMemoryMB = 4096
	maxTime     = 64
	maxThreads  = 64
)

// Argon2Params captures tunable parameters for Argon2id.
type Argon2Params struct {
	MemoryMB    uint32
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultArgon2Params returns sane defaults for deriving a 256-bit key.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryMB:    64,
		Time:        3,
		Parallelism: 1,
		KeyLen:      KeyLengthBytes,
	}
}

// ValidateParams rejects parameters outside the range this engine will run.
// Headers are read before they are authenticated, so the bounds stop a
// modified file from asking for unbounded memory or time.
func ValidateParams(p Argon2Params) error {
	switch {
	case p.KeyLen != KeyLengthBytes:
		return fmt.Errorf("key length must be %d bytes, got %d", KeyLengthBytes, p.KeyLen)
	case p.MemoryMB < minMemoryMB || p.MemoryMB > maxMemoryMB:
		return fmt.Errorf("memory must be between %d and %d MiB, got %d", minMemoryMB, maxMemoryMB, p.MemoryMB)
	case p.Time == 0 || p.Time > maxTime:
		return fmt.Errorf("time must be between 1 and %d, got %d", maxTime, p.Time)
	case p.Parallelism == 0 || p.Parallelism > maxThreads:
		return fmt.Errorf("parallelism must be between 1 and %d, got %d", maxThreads, p.Parallelism)
	}
	return nil
}

// DeriveKeyArgon2id derives a key using Argon2id with the provided parameters.
// The only policy applied to the passphrase itself is that it is not empty.
func DeriveKeyArgon2id(passphrase []byte, salt []byte, p Argon2Params) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, vaulterr.E("derive key", vaulterr.ErrWeakInput, nil)
	}
	if len(salt) != SaltLengthBytes {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltLengthBytes, len(salt))
	}
	if err := ValidateParams(p); err != nil {
		return nil, err
	}

	memoryKB := p.MemoryMB * 1024
	key := argon2.IDKey(passphrase, salt, p.Time, memoryKB, p.Parallelism, p.KeyLen)
	if uint32(len(key)) != p.KeyLen {
		return nil, fmt.Errorf("derived key has unexpected length %d", len(key))
	}
	return key, nil
}

// NewRandomSalt returns a cryptographically secure random salt.
func NewRandomSalt() ([]byte, error) {
	salt := make([]byte, SaltLengthBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
