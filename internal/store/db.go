// Package store is the per-session SQLite database. It keeps what must
// survive a daemon restart: the credentials, peers seen in searches and a
// little UI state. Messages and rooms are not persisted.
package store

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// WAL lets the TUI's status reads proceed while the daemon writes.
const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DB is a session's bazaar.db. Only the daemon holding the session lock
// opens it.
type DB struct {
	*sql.DB
}

// Open opens or creates the database at path. The file holds the access
// token, so it is restricted to the owner.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("restrict %s: %w", path, err)
	}
	return &DB{db}, nil
}
