// Package db tests for database migration management.
package db

import (
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"V1__first.up.sql":    {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"V1__first.down.sql":  {Data: []byte("DROP TABLE a;")},
		"V2__second.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"V2__second.down.sql": {Data: []byte("DROP TABLE b;")},
		"README.md":           {Data: []byte("ignored")},
		"Vx__broken.up.sql":   {Data: []byte("ignored")},
	}
}

// TestParseMigrationName verifies version and description parsing.
func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		name        string
		version     int
		description string
		ok          bool
	}{
		{"V1__sync_core.up.sql", 1, "sync_core", true},
		{"V12__add_index.down.sql", 12, "add_index", true},
		{"V0__zero.up.sql", 0, "", false},
		{"Vx__bad.up.sql", 0, "", false},
		{"V3.up.sql", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, description, ok := parseMigrationName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.description, description)
		})
	}
}

// TestMigrator_Up verifies pending migrations are applied in order.
func TestMigrator_Up(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, testMigrations())

	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())

	version, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	applied, err := m.GetAppliedMigrations()
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "first", applied[0].Description)
	assert.Len(t, applied[0].Checksum, 64)

	// second run is a no-op
	require.NoError(t, m.Up())
}

// TestMigrator_Up_modified verifies an edited applied migration is rejected.
func TestMigrator_Up_modified(t *testing.T) {
	db := openMemory(t)
	fsys := testMigrations()
	m := NewMigrator(db, fsys)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())

	fsys["V1__first.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id TEXT);")}
	err := m.Up()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modified")
}

// TestMigrator_Down verifies the last migration is rolled back.
func TestMigrator_Down(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, testMigrations())
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())

	version, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='b'").Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

// TestMigrator_Down_empty verifies rollback with nothing applied fails.
func TestMigrator_Down_empty(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, testMigrations())
	require.NoError(t, m.Initialize())

	assert.Error(t, m.Down())
}

// TestMigrations_embedded verifies the shipped migrations round-trip.
func TestMigrations_embedded(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, Migrations())
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())
	require.NoError(t, m.Down())
	require.NoError(t, m.Up())
}
