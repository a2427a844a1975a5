//go:build !darwin

package keyring

// New is unavailable on non-macOS platforms.
func New() (Guard, error) {
	return nil, ErrUnsupported
}
