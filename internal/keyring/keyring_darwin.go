//go:build darwin

// Keychain-backed generation guard.
//
// Design:
//   - Each vault maps to one Keychain "account" equal to its vault id.
//   - The item lives under service `keychainService` with a human-readable label.
//   - The payload is a JSON-encoded `State`, device-local and never synchronized to iCloud.

package keyring

import (
	"encoding/json"
	"fmt"
	"strings"

	keychain "github.com/keybase/go-keychain"
)

const (
	keychainService = "dev.secretvault.generation"
	keychainLabel   = "SecretVault rollback guard"
)

type keychainGuard struct{}

// New returns the macOS Keychain guard.
func New() (Guard, error) {
	return keychainGuard{}, nil
}

func account(vaultID string) (string, error) {
	vaultID = strings.TrimSpace(vaultID)
	if vaultID == "" {
		return "", fmt.Errorf("vault id is required")
	}
	return vaultID, nil
}

// load reads the stored State for a vault.
//
// Returns:
//
//	(State, bool, error): the decoded State and true when an item exists;
//	a zero State and false when the Keychain has no item for the vault.
func load(acct string) (State, bool, error) {
	data, err := keychain.GetGenericPassword(keychainService, acct, "", "")
	if err != nil {
		if err == keychain.ErrorItemNotFound {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("read rollback guard: %w", err)
	}
	if len(data) == 0 {
		return State{}, false, nil
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false, fmt.Errorf("decode rollback guard: %w", err)
	}
	return st, true, nil
}

// storePayload writes st for acct.
//
// Behavior:
//   - Creates a GenericPassword item that is SynchronizableNo and
//     AccessibleWhenUnlockedThisDeviceOnly.
//   - Falls back to UpdateItem when the item already exists.
func storePayload(acct string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode rollback guard: %w", err)
	}

	item := keychain.NewGenericPassword(keychainService, acct, keychainLabel, data, "")
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(keychain.AccessibleWhenUnlockedThisDeviceOnly)

	if err := keychain.AddItem(item); err != nil {
		if err == keychain.ErrorDuplicateItem {
			query := keychain.NewGenericPassword(keychainService, acct, "", nil, "")
			update := keychain.NewItem()
			update.SetData(data)
			if err := keychain.UpdateItem(query, update); err != nil {
				return fmt.Errorf("update rollback guard: %w", err)
			}
			return nil
		}
		return fmt.Errorf("add rollback guard to keychain: %w", err)
	}
	return nil
}

func (keychainGuard) Check(vaultID string, generation uint64) error {
	acct, err := account(vaultID)
	if err != nil {
		return err
	}
	st, found, err := load(acct)
	if err != nil {
		return err
	}
	return checkAgainst(st, found, vaultID, generation)
}

func (keychainGuard) Commit(vaultID string, generation uint64) error {
	acct, err := account(vaultID)
	if err != nil {
		return err
	}
	st, found, err := load(acct)
	if err != nil {
		return err
	}
	if found && generation <= st.Generation {
		return nil
	}
	return storePayload(acct, State{Generation: generation})
}

// Forget removes the Keychain item; a missing item is not an error.
func (keychainGuard) Forget(vaultID string) error {
	acct, err := account(vaultID)
	if err != nil {
		return err
	}
	query := keychain.NewGenericPassword(keychainService, acct, "", nil, "")
	if err := keychain.DeleteItem(query); err != nil && err != keychain.ErrorItemNotFound {
		return fmt.Errorf("remove rollback guard from keychain: %w", err)
	}
	return nil
}
