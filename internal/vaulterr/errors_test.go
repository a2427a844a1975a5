package vaulterr_test

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	err := vaulterr.E("save", vaulterr.ErrIO, os.ErrPermission)

	assert.ErrorIs(t, err, vaulterr.ErrIO)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.NotErrorIs(t, err, vaulterr.ErrCorrupt)
	assert.Equal(t, "save: vault: i/o failure: permission denied", err.Error())
}

func TestAuthenticationDropsCause(t *testing.T) {
	cause := errors.New("hmac mismatch at offset 17")
	err := vaulterr.E("unlock", vaulterr.ErrAuthentication, cause)

	require.ErrorIs(t, err, vaulterr.ErrAuthentication)
	assert.NotErrorIs(t, err, cause)
	assert.Equal(t, "unlock: vault: authentication failed", err.Error())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want vaulterr.Class
	}{
		{nil, vaulterr.Success},
		{vaulterr.E("unlock", vaulterr.ErrAuthentication, nil), vaulterr.UserError},
		{vaulterr.E("get", vaulterr.ErrNotFound, nil), vaulterr.UserError},
		{fmt.Errorf("run: %w", vaulterr.E("unlock", vaulterr.ErrLockContention, nil)), vaulterr.UserError},
		{vaulterr.E("load", vaulterr.ErrCorrupt, nil), vaulterr.SystemError},
		{vaulterr.E("save", vaulterr.ErrIO, os.ErrClosed), vaulterr.SystemError},
		{errors.New("something odd"), vaulterr.SystemError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, vaulterr.Classify(tc.err), "err=%v", tc.err)
	}
	assert.Equal(t, 0, vaulterr.Success.ExitCode())
	assert.Equal(t, 1, vaulterr.UserError.ExitCode())
	assert.Equal(t, 2, vaulterr.SystemError.ExitCode())
}
