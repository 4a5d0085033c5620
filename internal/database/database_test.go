package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")

	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'events'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "events", name)

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))
}

func TestMigrate_NullSourceIDsDoNotCollide(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	const insert = `INSERT INTO events (id, event_type, title, severity, date, source, source_id, created_at, updated_at)
		VALUES (?, 'storm', 't', 'low', 0, 'NWS', ?, 0, 0)`

	_, err = db.Exec(insert, "a", nil)
	require.NoError(t, err)
	_, err = db.Exec(insert, "b", nil)
	require.NoError(t, err, "NULL source ids are distinct")

	_, err = db.Exec(insert, "c", "x1")
	require.NoError(t, err)
	_, err = db.Exec(insert, "d", "x1")
	require.Error(t, err, "duplicate (source, source_id) must be rejected")
}
