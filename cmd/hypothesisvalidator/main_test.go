package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestMigrateUpSQLite(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "hv.db"))
	t.Setenv("LOG_LEVEL", "error")

	_, err := runCLI(t, "migrate", "up")
	require.NoError(t, err)

	_, err = runCLI(t, "migrate", "up")
	assert.NoError(t, err, "schema is idempotent")
}

func TestMigrateVersionNeedsPostgres(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	_, err := runCLI(t, "migrate", "version")
	assert.ErrorContains(t, err, "postgres")
}

func TestValidateRequiresFlags(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	_, err := runCLI(t, "validate", "--hypothesis", "H")
	assert.ErrorContains(t, err, "url")
}
