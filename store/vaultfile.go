package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Hussein-Mazeh/secretvault/internal/vault"
	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
	"github.com/Hussein-Mazeh/secretvault/krypto"
)

// Vault file layout, big-endian:
//
//	magic "SVLT" | uint16 version | uint32 body length | JSON body | HMAC-SHA256 tag
//
// The tag covers every byte that precedes it.
const (
	magic      = "SVLT"
	prefixSize = len(magic) + 2 + 4

	// MaxBodySize caps the JSON body a reader will accept.
	MaxBodySize = 256 << 20
)

// ErrIntegrity is the cause attached when the integrity tag does not verify.
var ErrIntegrity = errors.New("integrity tag mismatch")

// rename is swapped in tests to simulate a crash before the replace lands.
var rename = os.Rename

// Sealed is a vault file whose framing and schema have been checked but whose
// integrity tag has not. Only the header is readable.
type Sealed struct {
	Header vault.Header

	signed []byte
	body   []byte
	tag    []byte
}

type bodyHeader struct {
	Header vault.Header `json:"header"`
}

// Exists reports whether a vault file is present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, vaulterr.E("stat vault", vaulterr.ErrIO, err)
	}
}

// ReadSealed loads path and checks everything that can be checked without a
// key: magic, framing, format version, body schema and header bounds.
func ReadSealed(path string) (*Sealed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, vaulterr.E("read vault", vaulterr.ErrNotFound, fmt.Errorf("no vault at %s", path))
		}
		return nil, vaulterr.E("read vault", vaulterr.ErrIO, err)
	}
	return parseSealed(data)
}

func parseSealed(data []byte) (*Sealed, error) {
	corrupt := func(format string, args ...any) error {
		return vaulterr.E("read vault", vaulterr.ErrCorrupt, fmt.Errorf(format, args...))
	}

	if len(data) < prefixSize+krypto.TagSize {
		return nil, corrupt("file is %d bytes, too short for a vault", len(data))
	}
	if string(data[:len(magic)]) != magic {
		return nil, corrupt("bad magic")
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version != vault.FormatVersion {
		return nil, vaulterr.E("read vault", vaulterr.ErrUnsupportedVersion, fmt.Errorf("file version %d, supported %d", version, vault.FormatVersion))
	}
	bodyLen := binary.BigEndian.Uint32(data[6:10])
	if bodyLen > MaxBodySize || int(bodyLen) != len(data)-prefixSize-krypto.TagSize {
		return nil, corrupt("body length %d does not match file size %d", bodyLen, len(data))
	}

	signedEnd := prefixSize + int(bodyLen)
	body := data[prefixSize:signedEnd]
	if err := validateBody(body); err != nil {
		return nil, corrupt("%v", err)
	}

	var bh bodyHeader
	if err := json.Unmarshal(body, &bh); err != nil {
		return nil, corrupt("decode header: %v", err)
	}
	if err := checkHeader(bh.Header, int(version)); err != nil {
		return nil, corrupt("%v", err)
	}

	return &Sealed{
		Header: bh.Header,
		signed: data[:signedEnd],
		body:   body,
		tag:    data[signedEnd:],
	}, nil
}

// checkHeader bounds what an unauthenticated header may ask of the KDF.
func checkHeader(h vault.Header, version int) error {
	if h.Version != version {
		return fmt.Errorf("header version %d disagrees with framing %d", h.Version, version)
	}
	if h.KDF.Name != krypto.KDFName {
		return fmt.Errorf("unsupported kdf %q", h.KDF.Name)
	}
	if err := krypto.ValidateParams(h.KDF.Params()); err != nil {
		return err
	}
	if len(h.Salt) != krypto.SaltLengthBytes {
		return fmt.Errorf("salt is %d bytes", len(h.Salt))
	}
	if _, err := krypto.ParseSuite(h.Cipher); err != nil {
		return err
	}
	return nil
}

// Open verifies the integrity tag with macKey and only then decodes the
// entries. A mismatch is reported as corruption.
func (s *Sealed) Open(macKey []byte) (*vault.File, error) {
	if !krypto.VerifyTag(macKey, s.signed, s.tag) {
		return nil, vaulterr.E("open vault", vaulterr.ErrCorrupt, ErrIntegrity)
	}
	var f vault.File
	if err := json.Unmarshal(s.body, &f); err != nil {
		return nil, vaulterr.E("open vault", vaulterr.ErrCorrupt, fmt.Errorf("decode body: %w", err))
	}
	f.IntegrityTag = append([]byte(nil), s.tag...)
	return &f, nil
}

// Size returns the number of bytes read from disk.
func (s *Sealed) Size() int { return len(s.signed) + len(s.tag) }

// Tag returns a copy of the unverified integrity tag.
func (s *Sealed) Tag() []byte { return append([]byte(nil), s.tag...) }

// Encode frames f and appends its integrity tag.
func Encode(f *vault.File, macKey []byte) ([]byte, error) {
	if f.Header.Version != vault.FormatVersion {
		return nil, fmt.Errorf("cannot write format version %d", f.Header.Version)
	}
	entries := f.Entries
	if entries == nil {
		entries = []vault.EntryRecord{}
	}
	body, err := json.Marshal(struct {
		Header  vault.Header        `json:"header"`
		Entries []vault.EntryRecord `json:"entries"`
	}{f.Header, entries})
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("body of %d bytes exceeds limit", len(body))
	}

	var buf bytes.Buffer
	buf.Grow(prefixSize + len(body) + krypto.TagSize)
	buf.WriteString(magic)
	_ = binary.Write(&buf, binary.BigEndian, uint16(f.Header.Version))
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(body)))
	buf.Write(body)
	buf.Write(krypto.ComputeTag(macKey, buf.Bytes()))
	return buf.Bytes(), nil
}

// Save writes f to path atomically with restrictive permissions. The prior
// file stays intact unless the final rename succeeds.
func Save(path string, f *vault.File, macKey []byte) error {
	data, err := Encode(f, macKey)
	if err != nil {
		return vaulterr.E("save vault", vaulterr.ErrIO, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return vaulterr.E("save vault", vaulterr.ErrIO, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp vault: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp vault: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp vault: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := tmp.Chmod(0o600); err != nil {
			return fmt.Errorf("chmod temp vault: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp vault: %w", err)
	}
	if err := rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace vault: %w", err)
	}
	committed = true

	return syncDir(dir)
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open vault directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync vault directory: %w", err)
	}
	return nil
}
