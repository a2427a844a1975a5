//go:build !unix

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
)

// AcquireLock creates path exclusively. An existing file means another
// process holds the vault; a stale file left by a crash must be removed by hand.
func AcquireLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, vaulterr.E("acquire lock", vaulterr.ErrIO, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, vaulterr.E("acquire lock", vaulterr.ErrLockContention, fmt.Errorf("held by pid %d", LockOwner(path)))
		}
		return nil, vaulterr.E("acquire lock", vaulterr.ErrIO, err)
	}
	if err := writePID(f); err != nil {
		f.Close()
		os.Remove(path)
		return nil, vaulterr.E("acquire lock", vaulterr.ErrIO, err)
	}
	return &FileLock{path: path, f: f}, nil
}

func unlock(*os.File) error { return nil }
