package store

import (
	"database/sql"
	"fmt"
)

const upsertUserSQL = `
	INSERT INTO users (id, name, image_url)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		image_url = excluded.image_url`

// UpsertUsers inserts or replaces users by id in a single transaction.
// The latest name and avatar win.
func (db *DB) UpsertUsers(users []User) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertUsersTx(tx, users); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertUsersTx(tx *sql.Tx, users []User) error {
	for _, u := range users {
		if _, err := tx.Exec(upsertUserSQL, u.ID, u.Name, u.ImageURL); err != nil {
			return fmt.Errorf("upsert user %q: %w", u.ID, err)
		}
	}
	return nil
}

// GetUser returns a user by id, or nil when it does not exist.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT id, name, image_url FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.ImageURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
