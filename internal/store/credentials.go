package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/bazaar/internal/auth"
)

// SaveCredentials stores the session's credentials, replacing any previous ones.
func (db *DB) SaveCredentials(c auth.Credentials) error {
	_, err := db.Exec(`
		INSERT INTO credentials (id, token, user_id, username, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			username = excluded.username,
			updated_at = excluded.updated_at`,
		c.Token, c.UserID, c.Username, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the stored credentials, or nil when logged out.
func (db *DB) LoadCredentials() (*auth.Credentials, error) {
	var c auth.Credentials
	err := db.QueryRow(`SELECT token, user_id, username FROM credentials WHERE id = 1`).
		Scan(&c.Token, &c.UserID, &c.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return &c, nil
}

// ClearCredentials forgets the stored credentials.
func (db *DB) ClearCredentials() error {
	if _, err := db.Exec(`DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
