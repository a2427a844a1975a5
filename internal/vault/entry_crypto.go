package vault

import (
	"errors"
	"fmt"

	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
	"github.com/Hussein-Mazeh/secretvault/krypto"
)

// entryAAD binds a ciphertext to its name, the format version and the vault
// it belongs to. The name goes last so no separator inside it can make two
// different tuples collide.
func entryAAD(vaultID, name string) []byte {
	return []byte(fmt.Sprintf("secretvault:v%d:%s:%s", FormatVersion, vaultID, name))
}

// sealEntry encrypts plaintext for name under a fresh nonce.
func sealEntry(cfg RecordsConfig, name string, plaintext []byte, taken func([]byte) bool) (nonce, ciphertext []byte, err error) {
	for attempt := 0; attempt < 3; attempt++ {
		nonce, err = krypto.NewNonce(cfg.Suite)
		if err != nil {
			return nil, nil, err
		}
		if !taken(nonce) {
			break
		}
		nonce = nil
	}
	if nonce == nil {
		return nil, nil, errors.New("could not draw an unused nonce")
	}

	ciphertext, err = krypto.Seal(cfg.Suite, cfg.Key, nonce, plaintext, entryAAD(cfg.VaultID, name))
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt entry %q: %w", name, err)
	}
	return nonce, ciphertext, nil
}

// openEntry decrypts a stored record. The file tag was already verified, so
// a failure here means the body was written wrongly, not a bad passphrase.
func openEntry(cfg RecordsConfig, rec *EntryRecord) ([]byte, error) {
	plaintext, err := krypto.Open(cfg.Suite, cfg.Key, rec.Nonce, rec.Ciphertext, entryAAD(cfg.VaultID, rec.Name))
	if err != nil {
		return nil, vaulterr.E("decrypt entry", vaulterr.ErrCorrupt, fmt.Errorf("entry %q does not authenticate", rec.Name))
	}
	return plaintext, nil
}
