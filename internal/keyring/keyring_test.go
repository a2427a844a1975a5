package keyring

import (
	"errors"
	"testing"
)

func TestMemoryGuard(t *testing.T) {
	g := NewMemory()

	if err := g.Check("v1", 0); err != nil {
		t.Fatalf("unseen vault should pass: %v", err)
	}
	if err := g.Commit("v1", 5); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := g.Check("v1", 5); err != nil {
		t.Fatalf("same generation should pass: %v", err)
	}
	if err := g.Check("v1", 7); err != nil {
		t.Fatalf("newer generation should pass: %v", err)
	}
	if err := g.Check("v1", 4); !errors.Is(err, ErrRollback) {
		t.Fatalf("expected ErrRollback, got %v", err)
	}

	// Commit never lowers the mark.
	if err := g.Commit("v1", 2); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := g.Check("v1", 4); !errors.Is(err, ErrRollback) {
		t.Fatalf("expected ErrRollback after lower commit, got %v", err)
	}

	if err := g.Check("v2", 0); err != nil {
		t.Fatalf("other vault should be independent: %v", err)
	}

	if err := g.Forget("v1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if err := g.Check("v1", 0); err != nil {
		t.Fatalf("forgotten vault should pass: %v", err)
	}
}
