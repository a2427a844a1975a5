// Package vaulterr defines the error kinds surfaced by the vault engine and
// how the command-line adapter classifies them.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kinds. Callers match them with errors.Is.
var (
	ErrAuthentication     = errors.New("vault: authentication failed")
	ErrNotFound           = errors.New("vault: not found")
	ErrCorrupt            = errors.New("vault: vault file is corrupted")
	ErrUnsupportedVersion = errors.New("vault: unsupported format version")
	ErrIO                 = errors.New("vault: i/o failure")
	ErrLockContention     = errors.New("vault: vault is in use by another process")
	ErrWeakInput          = errors.New("vault: weak or empty passphrase")

	ErrLocked        = errors.New("vault: vault is locked")
	ErrSessionFailed = errors.New("vault: session failed; lock and retry")
	ErrExists        = errors.New("vault: vault already exists")
	ErrInvalidInput  = errors.New("vault: invalid input")
)

// Error carries the operation that failed, its kind and an optional cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// E builds an *Error. Authentication failures drop the cause so that the
// message is identical whatever went wrong underneath.
func E(op string, kind error, err error) error {
	if errors.Is(kind, ErrAuthentication) {
		err = nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.Error()
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the first known kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

var kinds = []error{
	ErrAuthentication,
	ErrNotFound,
	ErrCorrupt,
	ErrUnsupportedVersion,
	ErrIO,
	ErrLockContention,
	ErrWeakInput,
	ErrLocked,
	ErrSessionFailed,
	ErrExists,
	ErrInvalidInput,
}

// Class groups outcomes the way the CLI reports them.
type Class int

const (
	Success Class = iota
	UserError
	SystemError
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case UserError:
		return "user error"
	case SystemError:
		return "system error"
	default:
		return "unknown"
	}
}

// ExitCode maps a class to the process exit status.
func (c Class) ExitCode() int {
	switch c {
	case Success:
		return 0
	case UserError:
		return 1
	default:
		return 2
	}
}

// Classify reports whether err is the user's to fix (bad passphrase,
// missing name, contention) or a system failure (I/O, corruption).
func Classify(err error) Class {
	if err == nil {
		return Success
	}
	switch KindOf(err) {
	case ErrAuthentication, ErrNotFound, ErrLockContention, ErrWeakInput,
		ErrLocked, ErrExists, ErrInvalidInput:
		return UserError
	case ErrCorrupt, ErrUnsupportedVersion, ErrIO, ErrSessionFailed:
		return SystemError
	}
	var uerr interface{ UserFacing() bool }
	if errors.As(err, &uerr) && uerr.UserFacing() {
		return UserError
	}
	return SystemError
}
