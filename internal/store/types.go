package store

import "database/sql"

// AttachmentImage is the only attachment kind the snapshot records.
const AttachmentImage = "image"

// User is a message author as last seen upstream.
type User struct {
	ID       string
	Name     string
	ImageURL sql.NullString
}

// Message is one archived chat message. Date is seconds since the epoch.
type Message struct {
	ID          string
	UserID      string
	Text        sql.NullString
	Date        float64
	Attachments []Attachment
}

// Attachment is a remote piece of content attached to a message.
// Location is set only when the content was saved locally.
type Attachment struct {
	MessageID string
	Type      string
	Content   string
	Location  sql.NullString
}

// Row is one line of the chronological read-back: a message with its
// author and at most one attachment denormalized onto it.
type Row struct {
	MessageID          string
	UserID             string
	Text               sql.NullString
	Date               float64
	AuthorName         sql.NullString
	AuthorImageURL     sql.NullString
	AttachmentType     sql.NullString
	AttachmentContent  sql.NullString
	AttachmentLocation sql.NullString
}

// HasAttachment reports whether the row carries attachment content.
func (r Row) HasAttachment() bool {
	return r.AttachmentContent.Valid
}

// Stats holds row counts for each snapshot table.
type Stats struct {
	Users       int64
	Messages    int64
	Attachments int64
	Local       int64
}
