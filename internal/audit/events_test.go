package audit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit", "vault.audit.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() {
		l.Close()
	})
	return l
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	l := openTestLog(t)

	info, err := os.Stat(l.Path())
	if err != nil {
		t.Fatalf("expected database file to exist at %q: %v", l.Path(), err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}

	var name string
	if err := l.sql.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='events'`).Scan(&name); err != nil {
		t.Fatalf("query table existence: %v", err)
	}
}

func TestRecordAndEvents(t *testing.T) {
	l := openTestLog(t)

	for _, a := range []string{ActionCreate, ActionPut, ActionLock} {
		if err := l.Record("v1", a, "db-password"); err != nil {
			t.Fatalf("Record(%s): %v", a, err)
		}
	}
	if err := l.Record("v2", ActionUnlock, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	events, err := l.Events("v1", 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Action != ActionCreate || events[2].Action != ActionLock {
		t.Fatalf("unexpected order: %+v", events)
	}

	last, err := l.Events("v1", 2)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(last) != 2 || last[0].Action != ActionPut {
		t.Fatalf("expected the two newest events oldest first, got %+v", last)
	}

	n, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 verified events, got %d", n)
	}
}

func TestVerifyDetectsEditedRow(t *testing.T) {
	l := openTestLog(t)
	for i := 0; i < 3; i++ {
		if err := l.Record("v1", ActionPut, "a"); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	if _, err := l.sql.Exec(`UPDATE events SET subject = 'b' WHERE seq = 2`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	n, err := l.Verify()
	if !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected break after 1 good event, got %d", n)
	}
}

func TestVerifyDetectsDeletedRow(t *testing.T) {
	l := openTestLog(t)
	for i := 0; i < 3; i++ {
		if err := l.Record("v1", ActionPut, "a"); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	if _, err := l.sql.Exec(`DELETE FROM events WHERE seq = 2`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := l.Verify(); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken, got %v", err)
	}
}

func TestReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.audit.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Record("v1", ActionCreate, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	l.Close()

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	if err := l.Record("v1", ActionUnlock, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if n, err := l.Verify(); err != nil || n != 2 {
		t.Fatalf("Verify = %d, %v", n, err)
	}
}
