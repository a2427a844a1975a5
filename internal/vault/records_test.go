package vault

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
	"github.com/Hussein-Mazeh/secretvault/krypto"
)

func testConfig(t *testing.T, suite krypto.Suite) RecordsConfig {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, krypto.KeyLengthBytes)
	return RecordsConfig{Suite: suite, Key: key, VaultID: "7b1f6a1c-1111-4222-8333-944445555666"}
}

func newTestRecords(t *testing.T) *Records {
	t.Helper()
	r, err := NewRecords(testConfig(t, krypto.DefaultSuite), nil)
	require.NoError(t, err)
	return r
}

func TestRecordsPutGet(t *testing.T) {
	for _, suite := range []krypto.Suite{krypto.SuiteAESGCM, krypto.SuiteXChaCha} {
		t.Run(string(suite), func(t *testing.T) {
			r, err := NewRecords(testConfig(t, suite), nil)
			require.NoError(t, err)

			require.NoError(t, r.Put("github-token", []byte("ghp_abc123")))
			got, err := r.Get("github-token")
			require.NoError(t, err)
			assert.Equal(t, "ghp_abc123", string(got))

			recs := r.Records()
			require.Len(t, recs, 1)
			assert.NotContains(t, string(recs[0].Ciphertext), "ghp_abc123")
			assert.Len(t, recs[0].Nonce, suite.NonceSize())
		})
	}
}

func TestRecordsEmptyValue(t *testing.T) {
	r := newTestRecords(t)
	require.NoError(t, r.Put("empty", nil))
	got, err := r.Get("empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecordsUpdateKeepsCreatedAndRotatesNonce(t *testing.T) {
	r := newTestRecords(t)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return t0 }
	require.NoError(t, r.Put("db", []byte("first")))
	before := r.Records()[0]

	r.now = func() time.Time { return t0.Add(time.Hour) }
	require.NoError(t, r.Put("db", []byte("second")))
	after := r.Records()[0]

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, t0, after.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), after.UpdatedAt)
	assert.NotEqual(t, before.Nonce, after.Nonce)

	got, err := r.Get("db")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestRecordsNotFound(t *testing.T) {
	r := newTestRecords(t)

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, vaulterr.ErrNotFound)
	assert.ErrorIs(t, r.Delete("missing"), vaulterr.ErrNotFound)
	_, err = r.Info("missing")
	assert.ErrorIs(t, err, vaulterr.ErrNotFound)
}

func TestRecordsDelete(t *testing.T) {
	r := newTestRecords(t)
	require.NoError(t, r.Put("a", []byte("1")))
	require.NoError(t, r.Delete("a"))
	assert.False(t, r.Has("a"))
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.nonces)
}

func TestRecordsNamesSorted(t *testing.T) {
	r := newTestRecords(t)
	for _, n := range []string{"zeta", "Alpha", "beta", "alpha"} {
		require.NoError(t, r.Put(n, []byte(n)))
	}
	assert.Equal(t, []string{"Alpha", "alpha", "beta", "zeta"}, r.Names())

	recs := r.Records()
	for i, rec := range recs {
		assert.Equal(t, r.Names()[i], rec.Name)
	}
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"api-key", true},
		{"Prod DB / admin", true},
		{"ключ", true},
		{"", false},
		{strings.Repeat("x", MaxNameLength), true},
		{strings.Repeat("x", MaxNameLength+1), false},
		{"tab\there", false},
		{"bad\xff", false},
	}
	for _, tc := range cases {
		err := ValidateName(tc.name)
		if tc.ok {
			assert.NoError(t, err, "name %q", tc.name)
		} else {
			assert.ErrorIs(t, err, vaulterr.ErrInvalidInput, "name %q", tc.name)
		}
	}
}

func TestRecordsRejectsOversizeValue(t *testing.T) {
	r := newTestRecords(t)
	err := r.Put("big", make([]byte, MaxValueSize+1))
	assert.ErrorIs(t, err, vaulterr.ErrInvalidInput)
	assert.False(t, r.Has("big"))
}

func TestNewRecordsRejectsCorruptInput(t *testing.T) {
	cfg := testConfig(t, krypto.DefaultSuite)
	src := newTestRecords(t)
	require.NoError(t, src.Put("a", []byte("1")))
	require.NoError(t, src.Put("b", []byte("2")))
	recs := src.Records()

	dup := []EntryRecord{recs[0], recs[0]}
	_, err := NewRecords(cfg, dup)
	assert.ErrorIs(t, err, vaulterr.ErrCorrupt)

	reused := []EntryRecord{recs[0], recs[1]}
	reused[1].Nonce = recs[0].Nonce
	_, err = NewRecords(cfg, reused)
	assert.ErrorIs(t, err, vaulterr.ErrCorrupt)

	short := []EntryRecord{recs[0]}
	short[0].Nonce = short[0].Nonce[:4]
	_, err = NewRecords(cfg, short)
	assert.ErrorIs(t, err, vaulterr.ErrCorrupt)
}

func TestRecordsBoundToName(t *testing.T) {
	cfg := testConfig(t, krypto.DefaultSuite)
	src := newTestRecords(t)
	require.NoError(t, src.Put("a", []byte("alpha")))
	recs := src.Records()
	recs[0].Name = "b"

	r, err := NewRecords(cfg, recs)
	require.NoError(t, err)
	_, err = r.Get("b")
	assert.ErrorIs(t, err, vaulterr.ErrCorrupt)
}

func TestRecordsReseal(t *testing.T) {
	r := newTestRecords(t)
	require.NoError(t, r.Put("a", []byte("alpha")))
	require.NoError(t, r.Put("b", []byte("bravo")))

	next := RecordsConfig{
		Suite:   krypto.SuiteXChaCha,
		Key:     bytes.Repeat([]byte{0x07}, krypto.KeyLengthBytes),
		VaultID: r.cfg.VaultID,
	}
	resealed, err := r.Reseal(next)
	require.NoError(t, err)
	assert.Equal(t, r.Names(), resealed.Names())

	for _, name := range []string{"a", "b"} {
		want, err := r.Get(name)
		require.NoError(t, err)
		got, err := resealed.Get(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// old key must no longer open the resealed entries
	stale, err := NewRecords(r.cfg, nil)
	require.NoError(t, err)
	rec := resealed.Records()[0]
	_, err = openEntry(stale.cfg, &rec)
	assert.ErrorIs(t, err, vaulterr.ErrCorrupt)
}
