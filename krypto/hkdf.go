package krypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	entryKeyInfo     = "secretvault/entries/v1"
	integrityKeyInfo = "secretvault/integrity/v1"
)

// SplitKeys expands the Argon2id output into two independent subkeys: one
// for entry encryption and one for the file integrity tag. The vault id is
// the HKDF salt so that identical passphrases and salts in two vaults still
// give unrelated keys.
func SplitKeys(master, vaultID []byte) (entryKey, macKey []byte, err error) {
	if len(master) != KeyLengthBytes {
		return nil, nil, fmt.Errorf("master key must be %d bytes", KeyLengthBytes)
	}
	entryKey, err = expand(master, vaultID, entryKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	macKey, err = expand(master, vaultID, integrityKeyInfo)
	if err != nil {
		Wipe(entryKey)
		return nil, nil, err
	}
	return entryKey, macKey, nil
}

func expand(master, salt []byte, info string) ([]byte, error) {
	out := make([]byte, KeyLengthBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("hkdf %s: %w", info, err)
	}
	return out, nil
}
