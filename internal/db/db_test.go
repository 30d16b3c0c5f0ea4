// Package db tests for database connection management.
package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpen verifies database opening with proper configuration.
func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Open(tmpDir)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Join(tmpDir, FileName))
	assert.NoError(t, err, "database file should be created")

	var walMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&walMode))
	assert.Equal(t, "wal", walMode)

	var fkEnabled int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled))
	assert.Equal(t, 1, fkEnabled)

	for _, table := range []string{"operations", "sync_requests", "records", "kv", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

// TestOpen_reopen verifies migrations are not applied twice.
func TestOpen_reopen(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Open(tmpDir)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(tmpDir)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

// TestOpen_invalidDataDir verifies error when data directory cannot be created.
func TestOpen_invalidDataDir(t *testing.T) {
	_, err := Open("/dev/null/invalid_path/that/cannot/be/created")
	assert.Error(t, err)
}
