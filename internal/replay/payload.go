package replay

import (
	"github.com/matheus3301/grouparchive/internal/slack"
	"github.com/matheus3301/grouparchive/internal/store"
)

// attachmentTitle labels the image block; it doubles as the fallback text.
const attachmentTitle = "GroupMe Message"

// BuildPayload renders a snapshot row as a destination message posted
// under the original author's name and avatar. Images are referenced by
// their remote URL, never by a local copy.
func BuildPayload(r store.Row) slack.Payload {
	p := slack.Payload{
		Text:     r.Text.String,
		Username: r.AuthorName.String,
		IconURL:  r.AuthorImageURL.String,
	}
	if r.HasAttachment() {
		p.Attachments = []slack.Attachment{{
			Fallback:   attachmentTitle,
			Title:      attachmentTitle,
			AuthorName: r.AuthorName.String,
			AuthorIcon: r.AuthorImageURL.String,
			Text:       r.Text.String,
			ImageURL:   r.AttachmentContent.String,
		}}
	}
	return p
}
