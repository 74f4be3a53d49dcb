package groupme

import "encoding/json"

// Group is a GroupMe group as returned by the groups index.
type Group struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Messages struct {
		Count int `json:"count"`
	} `json:"messages"`
}

// MessageCount is the group's total message count, known up front.
func (g Group) MessageCount() int {
	return g.Messages.Count
}

// Member is a group member.
type Member struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	ImageURL string `json:"image_url"`
}

// Attachment is a message attachment. Only image attachments carry a URL
// the archive cares about.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Message is one upstream message. CreatedAt is seconds since the epoch.
type Message struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	AvatarURL   string       `json:"avatar_url"`
	Text        string       `json:"text"`
	CreatedAt   int64        `json:"created_at"`
	Attachments []Attachment `json:"attachments"`
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Meta     struct {
		Code   int      `json:"code"`
		Errors []string `json:"errors"`
	} `json:"meta"`
}

type groupDetail struct {
	Group
	Members []Member `json:"members"`
}

type messagesPage struct {
	Count    int       `json:"count"`
	Messages []Message `json:"messages"`
}
