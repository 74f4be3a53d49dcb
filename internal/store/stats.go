package store

// Stats returns row counts for the snapshot tables.
func (db *DB) Stats() (Stats, error) {
	var s Stats
	err := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM attachments),
			(SELECT COUNT(*) FROM attachments WHERE location IS NOT NULL)`).
		Scan(&s.Users, &s.Messages, &s.Attachments, &s.Local)
	return s, err
}
