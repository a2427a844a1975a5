package vault

import (
	"time"

	"github.com/Hussein-Mazeh/secretvault/krypto"
)

// FormatVersion is the vault file layout written by this build.
const FormatVersion = 1

// KDFConfig describes the key-derivation parameters stored in the vault header.
type KDFConfig struct {
	Name        string `json:"name"`
	MemoryMB    uint32 `json:"memoryMB"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"keyLen"`
}

// NewKDFConfig records p under the argon2id name.
func NewKDFConfig(p krypto.Argon2Params) KDFConfig {
	return KDFConfig{
		Name:        krypto.KDFName,
		MemoryMB:    p.MemoryMB,
		Time:        p.Time,
		Parallelism: p.Parallelism,
		KeyLen:      p.KeyLen,
	}
}

// Params converts the stored configuration back into Argon2 parameters.
func (c KDFConfig) Params() krypto.Argon2Params {
	return krypto.Argon2Params{
		MemoryMB:    c.MemoryMB,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		KeyLen:      c.KeyLen,
	}
}

// Header captures metadata persisted alongside the vault contents. It is
// readable without the passphrase; it is authenticated by the file tag.
type Header struct {
	Version    int       `json:"version"`
	VaultID    string    `json:"vaultId"`
	Generation uint64    `json:"generation"`
	Cipher     string    `json:"cipher"`
	Salt       []byte    `json:"salt"`
	KDF        KDFConfig `json:"kdf"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// EntryRecord is one encrypted secret as it is stored on disk.
type EntryRecord struct {
	Name       string    `json:"name"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// File is the unit of atomic persistence.
type File struct {
	Header  Header        `json:"header"`
	Entries []EntryRecord `json:"entries"`

	// IntegrityTag is filled in by the store when the file is read back.
	IntegrityTag []byte `json:"-"`
}

// EntryInfo is the non-secret view of an entry.
type EntryInfo struct {
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
