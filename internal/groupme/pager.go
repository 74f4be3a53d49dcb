package groupme

import "context"

// MessageLister is the part of Client the Pager needs.
type MessageLister interface {
	Messages(ctx context.Context, groupID, beforeID string, limit int) ([]Message, error)
}

// Pager walks a group's history from newest to oldest. It holds only the
// cursor, never the history itself, and cannot be rewound.
type Pager struct {
	lister   MessageLister
	groupID  string
	limit    int
	beforeID string
	done     bool
}

// NewPager creates a pager positioned at the newest message.
func NewPager(lister MessageLister, groupID string, limit int) *Pager {
	return &Pager{lister: lister, groupID: groupID, limit: limit}
}

// Next returns the next older page. Once a page comes back empty every
// later call returns empty without contacting the API.
func (p *Pager) Next(ctx context.Context) ([]Message, error) {
	if p.done {
		return nil, nil
	}
	msgs, err := p.lister.Messages(ctx, p.groupID, p.beforeID, p.limit)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		p.done = true
		return nil, nil
	}
	p.beforeID = msgs[len(msgs)-1].ID
	return msgs, nil
}
