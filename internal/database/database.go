package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver, registers "sqlite"
)

// New creates a new database connection pool.
func New(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// Open is New followed by Migrate.
func Open(path string) (*sql.DB, error) {
	db, err := New(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the database schema.
// source_id is NULL when a feed supplies no id, so such rows never collide
// on the unique key. Dates are unix milliseconds.
func Migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id          TEXT NOT NULL PRIMARY KEY,
			event_type  TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			lat         REAL NOT NULL DEFAULT 0,
			lon         REAL NOT NULL DEFAULT 0,
			country     TEXT NOT NULL DEFAULT '',
			region      TEXT,
			address     TEXT,
			severity    TEXT NOT NULL,
			magnitude   REAL,
			date        INTEGER NOT NULL,
			source      TEXT NOT NULL,
			source_id   TEXT,
			is_active   INTEGER NOT NULL DEFAULT 1,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL,
			UNIQUE (source, source_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_active_date ON events(is_active, date)`,
		`CREATE INDEX IF NOT EXISTS idx_events_country ON events(country)`,
		`CREATE INDEX IF NOT EXISTS idx_events_severity ON events(severity)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	log.Debug().Msg("database schema up to date")
	return nil
}
