//go:build unix

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
)

// AcquireLock takes a non-blocking exclusive flock on path, creating the file
// if needed. A lock held elsewhere is reported as contention.
func AcquireLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, vaulterr.E("acquire lock", vaulterr.ErrIO, err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return nil, vaulterr.E("acquire lock", vaulterr.ErrIO, err)
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, vaulterr.E("acquire lock", vaulterr.ErrLockContention, fmt.Errorf("held by pid %d", LockOwner(path)))
			}
			return nil, vaulterr.E("acquire lock", vaulterr.ErrIO, err)
		}

		// The previous holder may have unlinked the file between our open and
		// flock; only a lock on the file still at path counts.
		if same, err := sameFile(f, path); err != nil || !same {
			unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			continue
		}

		if err := writePID(f); err != nil {
			unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			return nil, vaulterr.E("acquire lock", vaulterr.ErrIO, err)
		}
		return &FileLock{path: path, f: f}, nil
	}
	return nil, vaulterr.E("acquire lock", vaulterr.ErrLockContention, errors.New("lock file keeps changing"))
}

func sameFile(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, err
	}
	onDisk, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return os.SameFile(held, onDisk), nil
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
