package store

import "fmt"

// orderedSQL is the chronological view replay walks. Ties on date fall back
// to message id and attachment insertion order so ordinals stay stable
// between runs.
const orderedSQL = `
	SELECT m.id, m.user_id, m.text, m.date,
		u.name, u.image_url,
		a.type, a.content, a.location
	FROM messages m
	LEFT JOIN attachments a ON a.message_id = m.id
	LEFT JOIN users u ON u.id = m.user_id
	ORDER BY m.date ASC, m.id ASC, a.rowid ASC`

// ReadOrdered returns the snapshot in ascending chronological order,
// skipping the first start rows. A message with several attachments
// yields one row per attachment.
func (db *DB) ReadOrdered(start int) ([]Row, error) {
	if start < 0 {
		return nil, fmt.Errorf("negative start ordinal %d", start)
	}
	rows, err := db.Query(orderedSQL+` LIMIT -1 OFFSET ?`, start)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.MessageID, &r.UserID, &r.Text, &r.Date,
			&r.AuthorName, &r.AuthorImageURL,
			&r.AttachmentType, &r.AttachmentContent, &r.AttachmentLocation,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountOrdered returns how many rows ReadOrdered(0) yields.
func (db *DB) CountOrdered() (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*)
		FROM messages m
		LEFT JOIN attachments a ON a.message_id = m.id`).Scan(&n)
	return n, err
}
