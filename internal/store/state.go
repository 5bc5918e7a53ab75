package store

import (
	"database/sql"
	"errors"
	"time"
)

// Keys of session_state.
const (
	StateLastRoom = "last_room"
)

// SetState stores a session state value.
func (db *DB) SetState(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO session_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// GetState returns a session state value, or "" when unset.
func (db *DB) GetState(key string) (string, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM session_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}
