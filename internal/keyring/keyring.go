// Package keyring remembers, outside the vault file, the newest generation of
// each vault this device has written. An attacker who swaps in an older copy
// of the file (still carrying a valid tag) is caught on the next unlock.
package keyring

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnsupported signals that no OS keyring backs the guard on this platform.
	ErrUnsupported = errors.New("keyring not supported on this platform")
	// ErrRollback is returned when a vault file is older than one already seen.
	ErrRollback = errors.New("vault file is older than the last one written")
)

// Guard tracks the highest generation committed per vault id.
type Guard interface {
	// Check fails with ErrRollback when generation is below the recorded one.
	Check(vaultID string, generation uint64) error
	// Commit records generation if it is newer than what is stored.
	Commit(vaultID string, generation uint64) error
	// Forget drops the record for vaultID.
	Forget(vaultID string) error
}

// State is the payload stored per vault.
type State struct {
	Generation uint64 `json:"generation"`
}

func checkAgainst(stored State, found bool, vaultID string, generation uint64) error {
	if found && generation < stored.Generation {
		return fmt.Errorf("%w: vault %s at generation %d, expected at least %d", ErrRollback, vaultID, generation, stored.Generation)
	}
	return nil
}

// Memory is a process-local Guard.
type Memory struct {
	mu   sync.Mutex
	seen map[string]State
}

// NewMemory returns an empty in-memory guard.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]State)}
}

func (m *Memory) Check(vaultID string, generation uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.seen[vaultID]
	return checkAgainst(st, ok, vaultID, generation)
}

func (m *Memory) Commit(vaultID string, generation uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.seen[vaultID]; !ok || generation > st.Generation {
		m.seen[vaultID] = State{Generation: generation}
	}
	return nil
}

func (m *Memory) Forget(vaultID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, vaultID)
	return nil
}
