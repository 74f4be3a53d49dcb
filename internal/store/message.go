package store

import (
	"database/sql"
	"fmt"
)

const upsertMessageSQL = `
	INSERT INTO messages (id, user_id, text, date)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		text = excluded.text,
		date = excluded.date`

const upsertAttachmentSQL = `
	INSERT INTO attachments (message_id, type, content, location)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(message_id, content) DO UPDATE SET
		type = excluded.type,
		location = excluded.location`

// UpsertMessages inserts or replaces messages and their attachments in a
// single transaction. Authors must already be stored.
func (db *DB) UpsertMessages(msgs []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertMessagesTx(tx, msgs); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertPage writes one page of history: authors first, then messages with
// their attachments, committed together. A crash loses at most this page.
func (db *DB) UpsertPage(users []User, msgs []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertUsersTx(tx, users); err != nil {
		return err
	}
	if err := upsertMessagesTx(tx, msgs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit page: %w", err)
	}
	return nil
}

func upsertMessagesTx(tx *sql.Tx, msgs []Message) error {
	for _, m := range msgs {
		if _, err := tx.Exec(upsertMessageSQL, m.ID, m.UserID, m.Text, m.Date); err != nil {
			return fmt.Errorf("upsert message %q: %w", m.ID, err)
		}
		for _, a := range m.Attachments {
			if _, err := tx.Exec(upsertAttachmentSQL, m.ID, a.Type, a.Content, a.Location); err != nil {
				return fmt.Errorf("upsert attachment for message %q: %w", m.ID, err)
			}
		}
	}
	return nil
}

// GetMessage returns a message by id without its attachments, or nil.
func (db *DB) GetMessage(id string) (*Message, error) {
	var m Message
	err := db.QueryRow(`SELECT id, user_id, text, date FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.UserID, &m.Text, &m.Date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListAttachments returns the attachments stored for a message.
func (db *DB) ListAttachments(messageID string) ([]Attachment, error) {
	rows, err := db.Query(`
		SELECT message_id, type, content, location
		FROM attachments
		WHERE message_id = ?
		ORDER BY rowid ASC`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var atts []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.MessageID, &a.Type, &a.Content, &a.Location); err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}
