package audit

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Actions recorded by the session.
const (
	ActionCreate       = "create"
	ActionUnlock       = "unlock"
	ActionUnlockDenied = "unlock-denied"
	ActionPut          = "put"
	ActionDelete       = "delete"
	ActionPasswd       = "passwd"
	ActionLock         = "lock"
)

// ErrChainBroken is returned by Verify when a stored event no longer hashes
// to what its successor expects.
var ErrChainBroken = errors.New("audit chain broken")

// Event is one row of the audit chain. Subject is an entry name, never a value.
type Event struct {
	Seq      int64
	At       time.Time
	VaultID  string
	Action   string
	Subject  string
	PrevHash []byte
	Hash     []byte
}

func (e Event) digest() []byte {
	h := sha256.New()
	h.Write(e.PrevHash)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(e.Seq))
	h.Write(seq[:])
	for _, field := range []string{e.At.Format(time.RFC3339Nano), e.VaultID, e.Action, e.Subject} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}
	return h.Sum(nil)
}

// Record appends an event to the chain.
func (l *Log) Record(vaultID, action, subject string) error {
	if l == nil || l.sql == nil {
		return fmt.Errorf("audit database handle is nil")
	}

	tx, err := l.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	var (
		lastSeq  int64
		prevHash = make([]byte, sha256.Size)
	)
	err = tx.QueryRow(`SELECT seq, hash FROM events ORDER BY seq DESC LIMIT 1`).Scan(&lastSeq, &prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("select chain head: %w", err)
	}

	ev := Event{
		Seq:      lastSeq + 1,
		At:       l.now(),
		VaultID:  vaultID,
		Action:   action,
		Subject:  subject,
		PrevHash: prevHash,
	}
	ev.Hash = ev.digest()

	_, err = tx.Exec(
		`INSERT INTO events (seq, at, vault_id, action, subject, prev_hash, hash) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Seq, ev.At.Format(time.RFC3339Nano), ev.VaultID, ev.Action, ev.Subject, ev.PrevHash, ev.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit event: %w", err)
	}
	return nil
}

// Events returns the most recent events for vaultID, oldest first. A limit
// of zero or less returns all of them.
func (l *Log) Events(vaultID string, limit int) ([]Event, error) {
	if l == nil || l.sql == nil {
		return nil, fmt.Errorf("audit database handle is nil")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := l.sql.Query(
		`SELECT seq, at, vault_id, action, subject, prev_hash, hash FROM (
			SELECT * FROM events WHERE vault_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`,
		vaultID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Verify walks the whole chain and reports the first broken link.
func (l *Log) Verify() (int, error) {
	if l == nil || l.sql == nil {
		return 0, fmt.Errorf("audit database handle is nil")
	}

	rows, err := l.sql.Query(`SELECT seq, at, vault_id, action, subject, prev_hash, hash FROM events ORDER BY seq`)
	if err != nil {
		return 0, fmt.Errorf("select audit events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return 0, err
	}

	prev := make([]byte, sha256.Size)
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			return i, fmt.Errorf("%w: expected seq %d, found %d", ErrChainBroken, i+1, ev.Seq)
		}
		if !bytes.Equal(ev.PrevHash, prev) {
			return i, fmt.Errorf("%w: event %d does not follow its predecessor", ErrChainBroken, ev.Seq)
		}
		if !bytes.Equal(ev.digest(), ev.Hash) {
			return i, fmt.Errorf("%w: event %d was modified", ErrChainBroken, ev.Seq)
		}
		prev = ev.Hash
	}
	return len(events), nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var (
			ev Event
			at string
		)
		if err := rows.Scan(&ev.Seq, &at, &ev.VaultID, &ev.Action, &ev.Subject, &ev.PrevHash, &ev.Hash); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse audit time %q: %w", at, err)
		}
		ev.At = t
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
