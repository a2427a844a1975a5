package store

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileLock is an exclusive advisory lock on a vault. It holds the lock file
// open for as long as the lock is held.
type FileLock struct {
	path string
	f    *os.File
}

// Path returns the lock file location.
func (l *FileLock) Path() string { return l.path }

// Release drops the lock and removes the lock file. Releasing twice is a no-op.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	// Unlink while still holding the lock so a waiter cannot lock a file that
	// is about to disappear.
	rmErr := os.Remove(l.path)
	unlockErr := unlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if rmErr != nil && !os.IsNotExist(rmErr) {
		// Some platforms refuse to unlink an open file.
		rmErr = os.Remove(l.path)
	}

	switch {
	case rmErr != nil && !os.IsNotExist(rmErr):
		return fmt.Errorf("remove lock file: %w", rmErr)
	case unlockErr != nil:
		return fmt.Errorf("unlock: %w", unlockErr)
	case closeErr != nil:
		return fmt.Errorf("close lock file: %w", closeErr)
	}
	return nil
}

// LockOwner returns the PID recorded in a lock file, or 0 when none is readable.
func LockOwner(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return err
	}
	return f.Sync()
}
