package vault

import (
	"fmt"
	"sort"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
	"github.com/Hussein-Mazeh/secretvault/krypto"
)

const (
	// MaxNameLength bounds secret names in bytes.
	MaxNameLength = 256
	// MaxValueSize bounds a single secret value.
	MaxValueSize = 1 << 20
)

// RecordsConfig is the key material and identity the record store seals
// entries under. Key is borrowed, not copied; the owner wipes it.
type RecordsConfig struct {
	Suite   krypto.Suite
	Key     []byte
	VaultID string
}

// Records is the in-memory map of secret name to ciphertext. Values stay
// encrypted; Get decrypts on demand and nothing is cached.
type Records struct {
	cfg     RecordsConfig
	entries map[string]*EntryRecord
	nonces  map[string]struct{}
	now     func() time.Time
}

// NewRecords loads existing records, rejecting duplicates and malformed
// nonces as corruption.
func NewRecords(cfg RecordsConfig, existing []EntryRecord) (*Records, error) {
	r := &Records{
		cfg:     cfg,
		entries: make(map[string]*EntryRecord, len(existing)),
		nonces:  make(map[string]struct{}, len(existing)),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for i := range existing {
		rec := existing[i]
		if _, dup := r.entries[rec.Name]; dup {
			return nil, vaulterr.E("load records", vaulterr.ErrCorrupt, fmt.Errorf("duplicate entry %q", rec.Name))
		}
		if len(rec.Nonce) != cfg.Suite.NonceSize() {
			return nil, vaulterr.E("load records", vaulterr.ErrCorrupt, fmt.Errorf("entry %q has a %d-byte nonce", rec.Name, len(rec.Nonce)))
		}
		if _, dup := r.nonces[string(rec.Nonce)]; dup {
			return nil, vaulterr.E("load records", vaulterr.ErrCorrupt, fmt.Errorf("entry %q reuses a nonce", rec.Name))
		}
		r.entries[rec.Name] = &rec
		r.nonces[string(rec.Nonce)] = struct{}{}
	}
	return r, nil
}

// ValidateName checks a secret name: non-empty, bounded, UTF-8, and free of
// control characters. Names are case-sensitive.
func ValidateName(name string) error {
	switch {
	case name == "":
		return vaulterr.E("validate name", vaulterr.ErrInvalidInput, fmt.Errorf("name is empty"))
	case len(name) > MaxNameLength:
		return vaulterr.E("validate name", vaulterr.ErrInvalidInput, fmt.Errorf("name exceeds %d bytes", MaxNameLength))
	case !utf8.ValidString(name):
		return vaulterr.E("validate name", vaulterr.ErrInvalidInput, fmt.Errorf("name is not valid UTF-8"))
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return vaulterr.E("validate name", vaulterr.ErrInvalidInput, fmt.Errorf("name contains control characters"))
		}
	}
	return nil
}

func (r *Records) nonceTaken(n []byte) bool {
	_, ok := r.nonces[string(n)]
	return ok
}

// Put stores plaintext under name. An existing name is updated in place and
// keeps its creation time; every call draws a new nonce.
func (r *Records) Put(name string, plaintext []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if len(plaintext) > MaxValueSize {
		return vaulterr.E("put", vaulterr.ErrInvalidInput, fmt.Errorf("value for %q exceeds %d bytes", name, MaxValueSize))
	}

	nonce, ciphertext, err := sealEntry(r.cfg, name, plaintext, r.nonceTaken)
	if err != nil {
		return err
	}

	now := r.now()
	rec, ok := r.entries[name]
	if ok {
		delete(r.nonces, string(rec.Nonce))
		rec.Nonce = nonce
		rec.Ciphertext = ciphertext
		rec.UpdatedAt = now
	} else {
		r.entries[name] = &EntryRecord{
			Name:       name,
			Nonce:      nonce,
			Ciphertext: ciphertext,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	r.nonces[string(nonce)] = struct{}{}
	return nil
}

// Get decrypts the value stored under name.
func (r *Records) Get(name string) ([]byte, error) {
	rec, ok := r.entries[name]
	if !ok {
		return nil, vaulterr.E("get", vaulterr.ErrNotFound, fmt.Errorf("no secret named %q", name))
	}
	return openEntry(r.cfg, rec)
}

// Delete removes name.
func (r *Records) Delete(name string) error {
	rec, ok := r.entries[name]
	if !ok {
		return vaulterr.E("delete", vaulterr.ErrNotFound, fmt.Errorf("no secret named %q", name))
	}
	delete(r.nonces, string(rec.Nonce))
	delete(r.entries, name)
	return nil
}

// Has reports whether name is stored.
func (r *Records) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Len returns the number of entries.
func (r *Records) Len() int { return len(r.entries) }

// Names returns entry names in ascending byte order.
func (r *Records) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the timestamps of name.
func (r *Records) Info(name string) (EntryInfo, error) {
	rec, ok := r.entries[name]
	if !ok {
		return EntryInfo{}, vaulterr.E("info", vaulterr.ErrNotFound, fmt.Errorf("no secret named %q", name))
	}
	return EntryInfo{Name: rec.Name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}, nil
}

// Records returns a sorted copy of the stored entries for persistence.
func (r *Records) Records() []EntryRecord {
	out := make([]EntryRecord, 0, len(r.entries))
	for _, name := range r.Names() {
		rec := r.entries[name]
		out = append(out, EntryRecord{
			Name:       rec.Name,
			Nonce:      append([]byte(nil), rec.Nonce...),
			Ciphertext: append([]byte(nil), rec.Ciphertext...),
			CreatedAt:  rec.CreatedAt,
			UpdatedAt:  rec.UpdatedAt,
		})
	}
	return out
}

// Reseal decrypts every entry and encrypts it again under next, keeping
// timestamps. The receiver is left untouched.
func (r *Records) Reseal(next RecordsConfig) (*Records, error) {
	out, err := NewRecords(next, nil)
	if err != nil {
		return nil, err
	}
	out.now = r.now
	for _, name := range r.Names() {
		rec := r.entries[name]
		plaintext, err := openEntry(r.cfg, rec)
		if err != nil {
			return nil, err
		}
		nonce, ciphertext, err := sealEntry(next, name, plaintext, out.nonceTaken)
		krypto.Wipe(plaintext)
		if err != nil {
			return nil, err
		}
		out.entries[name] = &EntryRecord{
			Name:       name,
			Nonce:      nonce,
			Ciphertext: ciphertext,
			CreatedAt:  rec.CreatedAt,
			UpdatedAt:  rec.UpdatedAt,
		}
		out.nonces[string(nonce)] = struct{}{}
	}
	return out, nil
}
