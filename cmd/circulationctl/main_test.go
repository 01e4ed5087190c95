package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"library-circulation/internal/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func devEnv(t *testing.T) {
	t.Setenv("APP_MODE", "dev")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DEV_DB_PATH", filepath.Join(t.TempDir(), "ctl.db"))
	t.Setenv("DEV_JWT_SECRET", "ctl-secret")
}

func TestTokenCommand(t *testing.T) {
	devEnv(t)

	out, err := run(t, "token", "--user", "12", "--role", "librarian")
	require.NoError(t, err)

	claims, err := jwt.ValidateAccessToken(strings.TrimSpace(out), "ctl-secret")
	require.NoError(t, err)
	assert.Equal(t, uint(12), claims.UserID)
	assert.Equal(t, "LIBRARIAN", claims.Role)

	_, err = run(t, "token", "--user", "12", "--role", "janitor")
	assert.ErrorContains(t, err, "invalid role")

	_, err = run(t, "token")
	assert.ErrorContains(t, err, "--user is required")
}

func TestTokenCommand_DevOnly(t *testing.T) {
	devEnv(t)
	t.Setenv("APP_MODE", "prod")
	t.Setenv("PROD_DB_PATH", filepath.Join(t.TempDir(), "ctl.db"))

	_, err := run(t, "token", "--user", "1")
	assert.ErrorContains(t, err, "only available with APP_MODE=dev")
}

func TestMigrateThenSweep(t *testing.T) {
	devEnv(t)

	_, err := run(t, "migrate")
	require.NoError(t, err)

	out, err := run(t, "sweep-overdue")
	require.NoError(t, err)
	assert.Equal(t, "scanned=0 updated=0 failed=0\n", out)

	out, err = run(t, "expire-holds")
	require.NoError(t, err)
	assert.Contains(t, out, "scanned=0")

	_, err = run(t, "advance-queue")
	assert.ErrorContains(t, err, "--book is required")
}
