package auth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
)

func TestEvaluateRejectsEmpty(t *testing.T) {
	_, err := Policy{}.Evaluate(context.Background(), nil)
	assert.ErrorIs(t, err, vaulterr.ErrWeakInput)
}

func TestDefaultPolicyWarnsButAccepts(t *testing.T) {
	v, err := DefaultPolicy().Evaluate(context.Background(), []byte("correct-horse"))
	require.NoError(t, err)
	assert.Less(t, v.Score, 5)

	v, err = DefaultPolicy().Evaluate(context.Background(), []byte("aaa"))
	require.NoError(t, err)
	assert.NotEmpty(t, v.Warnings)
}

func TestMinScore(t *testing.T) {
	p := Policy{MinScore: 3}
	_, err := p.Evaluate(context.Background(), []byte("password"))
	assert.ErrorIs(t, err, vaulterr.ErrWeakInput)

	v, err := p.Evaluate(context.Background(), []byte("vL9#qT2!mZ8@wR4$kX6^"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.Score, 3)
}

func TestValidateComplexity(t *testing.T) {
	cases := map[string]bool{
		"short1!A":             false,
		"alllowercase12!":      false,
		"NoDigitsHere!!!":      false,
		"NoSpecials12345":      false,
		"Good-Passphrase-2024": true,
	}
	for pw, ok := range cases {
		err := ValidateComplexity(pw)
		if ok {
			assert.NoError(t, err, pw)
		} else {
			assert.Error(t, err, pw)
		}
	}

	_, err := Policy{RequireComplexity: true}.Evaluate(context.Background(), []byte("correct-horse"))
	assert.ErrorIs(t, err, vaulterr.ErrWeakInput)
}

func TestBreachedPassphraseRejected(t *testing.T) {
	p := Policy{
		CheckBreached: true,
		Breached: func(context.Context, string) (HIBPResult, error) {
			return HIBPResult{Found: true, Count: 42}, nil
		},
	}
	_, err := p.Evaluate(context.Background(), []byte("hunter2"))
	assert.ErrorIs(t, err, vaulterr.ErrWeakInput)
	assert.Contains(t, err.Error(), "42")
}

func TestBreachLookupFailureOnlyWarns(t *testing.T) {
	p := Policy{
		CheckBreached: true,
		Breached: func(context.Context, string) (HIBPResult, error) {
			return HIBPResult{}, errors.New("offline")
		},
	}
	v, err := p.Evaluate(context.Background(), []byte("hunter2"))
	require.NoError(t, err)
	assert.Contains(t, strings.Join(v.Warnings, "\n"), "offline")
}

func TestHIBPCheck(t *testing.T) {
	sum := sha1.Sum([]byte("hunter2"))
	full := strings.ToUpper(hex.EncodeToString(sum[:]))

	var gotPath, gotPadding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPadding = r.Header.Get("Add-Padding")
		fmt.Fprintf(w, "0000000000000000000000000000000000A:3\r\n%s:17\r\n", strings.ToLower(full[5:]))
	}))
	defer srv.Close()

	h := &HIBP{RangeURL: srv.URL + "/range/", Client: srv.Client()}

	res, err := h.Check(context.Background(), "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "/range/"+full[:5], gotPath)
	assert.Equal(t, "true", gotPadding)
	assert.True(t, res.Found)
	assert.Equal(t, 17, res.Count)

	res, err = h.Check(context.Background(), "not-in-the-list")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestScanRangeIgnoresPadding(t *testing.T) {
	res, err := scanRange(strings.NewReader("ABCDEF:0\nFFFFFF:9\n"), "abcdef")
	require.NoError(t, err)
	assert.False(t, res.Found)

	_, err = scanRange(strings.NewReader("ABCDEF:many\n"), "ABCDEF")
	assert.Error(t, err)
}

func TestHIBPBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h := &HIBP{RangeURL: srv.URL + "/", Client: srv.Client()}
	_, err := h.Check(context.Background(), "x")
	assert.Error(t, err)
}
