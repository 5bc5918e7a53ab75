package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/bazaar/internal/chat"
)

// UpsertPeers records users returned by a search. Empty fields never
// overwrite known values.
func (db *DB) UpsertPeers(users []chat.User) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, u := range users {
		if u.ID == 0 {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO peers (user_id, username, email, name, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				username = CASE WHEN excluded.username != '' THEN excluded.username ELSE peers.username END,
				email = CASE WHEN excluded.email != '' THEN excluded.email ELSE peers.email END,
				name = CASE WHEN excluded.name != '' THEN excluded.name ELSE peers.name END,
				updated_at = excluded.updated_at`,
			u.ID, u.Username, u.Email, u.Name, now); err != nil {
			return fmt.Errorf("upsert peer %d: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// GetPeer returns a known peer, or nil.
func (db *DB) GetPeer(userID int64) (*chat.User, error) {
	var u chat.User
	err := db.QueryRow(`SELECT user_id, username, email, name FROM peers WHERE user_id = ?`, userID).
		Scan(&u.ID, &u.Username, &u.Email, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SearchPeers matches known peers by username, name or email prefix.
func (db *DB) SearchPeers(q string, limit int) ([]chat.User, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := q + "%"
	rows, err := db.Query(`
		SELECT user_id, username, email, name FROM peers
		WHERE username LIKE ? OR name LIKE ? OR email LIKE ?
		ORDER BY username
		LIMIT ?`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []chat.User
	for rows.Next() {
		var u chat.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Name); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
