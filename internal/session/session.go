// Package session holds an open vault: the derived keys, the record store and
// the file lock, behind a small state machine. A Session is an explicit value;
// nothing is global, and Lock releases everything it acquired.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/secretvault/auth"
	"github.com/Hussein-Mazeh/secretvault/internal/audit"
	"github.com/Hussein-Mazeh/secretvault/internal/keyring"
	"github.com/Hussein-Mazeh/secretvault/internal/vault"
	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
	"github.com/Hussein-Mazeh/secretvault/krypto"
	"github.com/Hussein-Mazeh/secretvault/store"
)

// Options configures a Session. Suite and KDF apply to new vaults and to
// passphrase changes; an existing vault keeps what its header says.
type Options struct {
	Path     string
	LockPath string
	Suite    krypto.Suite
	KDF      krypto.Argon2Params
	Policy   auth.Policy

	// Audit and Guard are optional.
	Audit *audit.Log
	Guard keyring.Guard

	Logger zerolog.Logger
}

// Session is one open (or openable) vault. Methods are safe to call from
// several goroutines but run one at a time.
type Session struct {
	mu    sync.Mutex
	opts  Options
	log   zerolog.Logger
	state State

	flock   *store.FileLock
	keys    *memguard.LockedBuffer // entry key || integrity key
	header  vault.Header
	records *vault.Records

	now  func() time.Time
	save func(path string, f *vault.File, macKey []byte) error
}

// New validates opts and returns a Locked session.
func New(opts Options) (*Session, error) {
	if opts.Path == "" {
		return nil, errors.New("vault path is required")
	}
	if opts.LockPath == "" {
		opts.LockPath = opts.Path + ".lock"
	}
	suite, err := krypto.ParseSuite(string(opts.Suite))
	if err != nil {
		return nil, err
	}
	opts.Suite = suite
	if opts.KDF == (krypto.Argon2Params{}) {
		opts.KDF = krypto.DefaultArgon2Params()
	}
	if err := krypto.ValidateParams(opts.KDF); err != nil {
		return nil, fmt.Errorf("kdf: %w", err)
	}

	return &Session{
		opts:  opts,
		log:   opts.Logger.With().Str("component", "session").Logger(),
		state: Locked,
		now:   func() time.Time { return time.Now().UTC() },
		save:  store.Save,
	}, nil
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Path returns the vault file location.
func (s *Session) Path() string { return s.opts.Path }

func (s *Session) entryKey() []byte { return s.keys.Bytes()[:krypto.KeyLengthBytes] }
func (s *Session) macKey() []byte   { return s.keys.Bytes()[krypto.KeyLengthBytes:] }

func (s *Session) recordsConfig() vault.RecordsConfig {
	return vault.RecordsConfig{
		Suite:   krypto.Suite(s.header.Cipher),
		Key:     s.entryKey(),
		VaultID: s.header.VaultID,
	}
}

// deriveKeys runs the KDF for h and returns both subkeys in one locked,
// read-only buffer.
func deriveKeys(passphrase []byte, h vault.Header) (*memguard.LockedBuffer, error) {
	master, err := krypto.DeriveKeyArgon2id(passphrase, h.Salt, h.KDF.Params())
	if err != nil {
		return nil, err
	}
	defer krypto.Wipe(master)

	entryKey, macKey, err := krypto.SplitKeys(master, []byte(h.VaultID))
	if err != nil {
		return nil, err
	}
	both := make([]byte, 0, 2*krypto.KeyLengthBytes)
	both = append(both, entryKey...)
	both = append(both, macKey...)
	krypto.Wipe(entryKey)
	krypto.Wipe(macKey)

	buf := memguard.NewBufferFromBytes(both)
	buf.Freeze()
	return buf, nil
}

func (s *Session) stateErr(op string) error {
	switch s.state {
	case Failed:
		return vaulterr.E(op, vaulterr.ErrSessionFailed, nil)
	case Unlocked:
		return vaulterr.E(op, vaulterr.ErrInvalidInput, errors.New("vault is already unlocked"))
	default:
		return vaulterr.E(op, vaulterr.ErrLocked, nil)
	}
}

func (s *Session) requireUnlocked(op string) error {
	if s.state != Unlocked {
		return s.stateErr(op)
	}
	return nil
}

func (s *Session) acquire() error {
	l, err := store.AcquireLock(s.opts.LockPath)
	if err != nil {
		return err
	}
	s.flock = l
	return nil
}

// teardown destroys key material, drops records and releases the file lock.
func (s *Session) teardown() error {
	if s.keys != nil {
		s.keys.Destroy()
		s.keys = nil
	}
	s.records = nil
	s.header = vault.Header{}
	s.state = Locked

	if s.flock == nil {
		return nil
	}
	err := s.flock.Release()
	s.flock = nil
	if err != nil {
		return vaulterr.E("release lock", vaulterr.ErrIO, err)
	}
	return nil
}

// Create writes a new, empty vault sealed under passphrase and leaves the
// session Unlocked. passphrase is wiped before Create returns.
func (s *Session) Create(ctx context.Context, passphrase []byte) (auth.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer krypto.Wipe(passphrase)

	if s.state != Locked {
		return auth.Verdict{}, s.stateErr("create")
	}
	verdict, err := s.opts.Policy.Evaluate(ctx, passphrase)
	if err != nil {
		return verdict, err
	}

	s.state = Unlocking
	ok := false
	defer func() {
		if !ok {
			s.teardown()
		}
	}()

	if err := s.acquire(); err != nil {
		return verdict, err
	}
	exists, err := store.Exists(s.opts.Path)
	if err != nil {
		return verdict, err
	}
	if exists {
		return verdict, vaulterr.E("create", vaulterr.ErrExists, fmt.Errorf("%s", s.opts.Path))
	}

	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return verdict, vaulterr.E("create", vaulterr.ErrIO, err)
	}
	now := s.now()
	hdr := vault.Header{
		Version:   vault.FormatVersion,
		VaultID:   uuid.NewString(),
		Cipher:    string(s.opts.Suite),
		Salt:      salt,
		KDF:       vault.NewKDFConfig(s.opts.KDF),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.log.Debug().Str("vault", hdr.VaultID).Str("cipher", hdr.Cipher).Msg("deriving key for new vault")
	keys, err := deriveKeys(passphrase, hdr)
	if err != nil {
		return verdict, err
	}
	s.keys = keys
	s.header = hdr

	recs, err := vault.NewRecords(s.recordsConfig(), nil)
	if err != nil {
		return verdict, err
	}
	s.records = recs

	if err := s.persist(); err != nil {
		return verdict, err
	}

	ok = true
	s.state = Unlocked
	s.log.Info().Str("vault", hdr.VaultID).Str("path", s.opts.Path).Msg("vault created")
	s.record(audit.ActionCreate, "")
	return verdict, nil
}

// Unlock opens the vault with passphrase. A wrong passphrase and a file whose
// integrity tag does not verify both yield the same AuthenticationError. On
// any failure the session is Locked again and the file lock released.
// passphrase is wiped before Unlock returns.
func (s *Session) Unlock(passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer krypto.Wipe(passphrase)

	if s.state != Locked {
		return s.stateErr("unlock")
	}
	s.state = Unlocking
	ok := false
	defer func() {
		if !ok {
			s.teardown()
		}
	}()

	if err := s.acquire(); err != nil {
		return err
	}
	sealed, err := store.ReadSealed(s.opts.Path)
	if err != nil {
		return err
	}

	s.log.Debug().Str("vault", sealed.Header.VaultID).Uint64("generation", sealed.Header.Generation).Msg("deriving key")
	keys, err := deriveKeys(passphrase, sealed.Header)
	if err != nil {
		return err
	}
	s.keys = keys

	f, err := sealed.Open(s.macKey())
	if err != nil {
		if errors.Is(err, store.ErrIntegrity) {
			s.log.Warn().Str("vault", sealed.Header.VaultID).Msg("unlock denied")
			s.recordFor(sealed.Header.VaultID, audit.ActionUnlockDenied, "")
			return vaulterr.E("unlock", vaulterr.ErrAuthentication, nil)
		}
		return err
	}
	s.header = f.Header

	recs, err := vault.NewRecords(s.recordsConfig(), f.Entries)
	if err != nil {
		return err
	}

	if s.opts.Guard != nil {
		if err := s.opts.Guard.Check(s.header.VaultID, s.header.Generation); err != nil {
			if errors.Is(err, keyring.ErrRollback) {
				return vaulterr.E("unlock", vaulterr.ErrCorrupt, err)
			}
			s.log.Warn().Err(err).Msg("rollback guard unavailable")
		}
	}

	s.records = recs
	ok = true
	s.state = Unlocked
	s.commitGeneration()
	s.log.Debug().Str("vault", s.header.VaultID).Int("entries", recs.Len()).Msg("vault unlocked")
	s.record(audit.ActionUnlock, "")
	return nil
}

// persist saves the current header and records as the next generation.
func (s *Session) persist() error {
	next, err := s.persistWith(s.header, s.records, s.macKey())
	if err != nil {
		return err
	}
	s.header = next
	s.commitGeneration()
	return nil
}

// persistWith writes hdr (advanced by one generation) and recs sealed under
// macKey. A failed save moves the session to Failed.
func (s *Session) persistWith(hdr vault.Header, recs *vault.Records, macKey []byte) (vault.Header, error) {
	hdr.Generation++
	hdr.UpdatedAt = s.now()
	f := &vault.File{Header: hdr, Entries: recs.Records()}
	if err := s.save(s.opts.Path, f, macKey); err != nil {
		s.state = Failed
		s.log.Error().Err(err).Str("vault", hdr.VaultID).Msg("save failed; session must be locked")
		return hdr, err
	}
	s.log.Debug().Str("vault", hdr.VaultID).Uint64("generation", hdr.Generation).Int("entries", len(f.Entries)).Msg("vault saved")
	return hdr, nil
}

func (s *Session) commitGeneration() {
	if s.opts.Guard == nil {
		return
	}
	if err := s.opts.Guard.Commit(s.header.VaultID, s.header.Generation); err != nil {
		s.log.Warn().Err(err).Msg("could not record vault generation")
	}
}

func (s *Session) record(action, subject string) {
	s.recordFor(s.header.VaultID, action, subject)
}

func (s *Session) recordFor(vaultID, action, subject string) {
	if s.opts.Audit == nil {
		return
	}
	if err := s.opts.Audit.Record(vaultID, action, subject); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}

// Put stores value under name and saves the vault.
func (s *Session) Put(name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlocked("put"); err != nil {
		return err
	}
	if err := s.records.Put(name, value); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		return err
	}
	s.record(audit.ActionPut, name)
	return nil
}

// Get returns the plaintext stored under name. The caller owns the slice.
func (s *Session) Get(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlocked("get"); err != nil {
		return nil, err
	}
	return s.records.Get(name)
}

// Delete removes name and saves the vault.
func (s *Session) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlocked("delete"); err != nil {
		return err
	}
	if err := s.records.Delete(name); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		return err
	}
	s.record(audit.ActionDelete, name)
	return nil
}

// List returns entry names in ascending order.
func (s *Session) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlocked("list"); err != nil {
		return nil, err
	}
	return s.records.Names(), nil
}

// Info returns the timestamps of name.
func (s *Session) Info(name string) (vault.EntryInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlocked("info"); err != nil {
		return vault.EntryInfo{}, err
	}
	return s.records.Info(name)
}

// Entries returns the non-secret view of every entry, sorted by name.
func (s *Session) Entries() ([]vault.EntryInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlocked("list"); err != nil {
		return nil, err
	}
	names := s.records.Names()
	out := make([]vault.EntryInfo, 0, len(names))
	for _, n := range names {
		info, err := s.records.Info(n)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Header returns a copy of the vault header.
func (s *Session) Header() (vault.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlocked("header"); err != nil {
		return vault.Header{}, err
	}
	h := s.header
	h.Salt = append([]byte(nil), s.header.Salt...)
	return h, nil
}

// Verify decrypts every entry once and returns how many were checked.
func (s *Session) Verify() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlocked("verify"); err != nil {
		return 0, err
	}
	names := s.records.Names()
	for _, n := range names {
		plaintext, err := s.records.Get(n)
		if err != nil {
			return 0, err
		}
		krypto.Wipe(plaintext)
	}
	return len(names), nil
}

// ChangePassphrase re-derives the vault keys from next under a fresh salt and
// re-encrypts every entry. current must match the passphrase the vault was
// unlocked with. Both slices are wiped before ChangePassphrase returns.
func (s *Session) ChangePassphrase(ctx context.Context, current, next []byte) (auth.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer krypto.Wipe(current)
	defer krypto.Wipe(next)

	if err := s.requireUnlocked("change passphrase"); err != nil {
		return auth.Verdict{}, err
	}

	check, err := deriveKeys(current, s.header)
	if err != nil {
		return auth.Verdict{}, err
	}
	match := subtle.ConstantTimeCompare(check.Bytes(), s.keys.Bytes()) == 1
	check.Destroy()
	if !match {
		s.record(audit.ActionUnlockDenied, "")
		return auth.Verdict{}, vaulterr.E("change passphrase", vaulterr.ErrAuthentication, nil)
	}

	verdict, err := s.opts.Policy.Evaluate(ctx, next)
	if err != nil {
		return verdict, err
	}

	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return verdict, vaulterr.E("change passphrase", vaulterr.ErrIO, err)
	}
	hdr := s.header
	hdr.Salt = salt
	hdr.KDF = vault.NewKDFConfig(s.opts.KDF)

	keys, err := deriveKeys(next, hdr)
	if err != nil {
		return verdict, err
	}
	resealed, err := s.records.Reseal(vault.RecordsConfig{
		Suite:   krypto.Suite(hdr.Cipher),
		Key:     keys.Bytes()[:krypto.KeyLengthBytes],
		VaultID: hdr.VaultID,
	})
	if err != nil {
		keys.Destroy()
		return verdict, err
	}

	saved, err := s.persistWith(hdr, resealed, keys.Bytes()[krypto.KeyLengthBytes:])
	if err != nil {
		keys.Destroy()
		return verdict, err
	}

	old := s.keys
	s.keys = keys
	s.header = saved
	s.records = resealed
	old.Destroy()
	s.commitGeneration()

	s.log.Info().Str("vault", saved.VaultID).Msg("passphrase changed")
	s.record(audit.ActionPasswd, "")
	return verdict, nil
}

// Lock destroys the keys, drops the records and releases the file lock. It
// is valid from Unlocked and Failed and is a no-op when already Locked.
func (s *Session) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Locked {
		return nil
	}
	vaultID := s.header.VaultID
	from := s.state
	s.state = Locking

	err := s.teardown()
	s.log.Debug().Str("from", from.String()).Msg("vault locked")
	if vaultID != "" {
		s.recordFor(vaultID, audit.ActionLock, "")
	}
	return err
}
