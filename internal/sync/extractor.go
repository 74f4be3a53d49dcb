package sync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/matheus3301/grouparchive/internal/groupme"
	"github.com/matheus3301/grouparchive/internal/metrics"
	"github.com/matheus3301/grouparchive/internal/store"
	"go.uber.org/zap"
)

// Pager yields history pages from newest to oldest. An empty page ends
// the walk.
type Pager interface {
	Next(ctx context.Context) ([]groupme.Message, error)
}

// AttachmentResolver turns a message's upstream attachments into rows.
type AttachmentResolver interface {
	Resolve(ctx context.Context, messageID string, atts []groupme.Attachment) ([]store.Attachment, error)
}

// Job describes one extraction run.
type Job struct {
	Members []groupme.Member
	Pager   Pager
	// Total is the upstream message count, used only for the progress ratio.
	Total int
}

// Result summarizes a finished extraction.
type Result struct {
	Pages       int
	Messages    int
	Attachments int
}

// Extractor walks a group's history backward and upserts every page into
// the snapshot store.
type Extractor struct {
	db       *store.DB
	resolver AttachmentResolver
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewExtractor creates a new extractor.
func NewExtractor(db *store.DB, resolver AttachmentResolver, m *metrics.Metrics, logger *zap.Logger) *Extractor {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		db:       db,
		resolver: resolver,
		metrics:  m,
		logger:   logger,
	}
}

// Run performs the walk. Members are written before the first page and
// again after the last, so current nicknames win over the names carried
// by old messages. Any upstream or store error aborts the run; pages
// already committed stay in the store and a re-run overwrites them.
func (e *Extractor) Run(ctx context.Context, job Job) (*Result, error) {
	members := membersToUsers(job.Members)
	if err := e.db.UpsertUsers(members); err != nil {
		return nil, fmt.Errorf("store members: %w", err)
	}
	e.logger.Info("members stored", zap.Int("count", len(members)))

	// Pages arrive newest first, so an author's first occurrence carries
	// the latest name and avatar. Later pages must not overwrite it.
	seen := make(map[string]bool)
	res := &Result{}
	for {
		page, err := job.Pager.Next(ctx)
		if err != nil {
			return res, fmt.Errorf("fetch page %d: %w", res.Pages+1, err)
		}
		if len(page) == 0 {
			break
		}

		atts, err := e.storePage(ctx, page, seen)
		if err != nil {
			return res, fmt.Errorf("store page %d: %w", res.Pages+1, err)
		}
		res.Pages++
		res.Messages += len(page)
		res.Attachments += atts

		fields := []zap.Field{
			zap.Int("received", len(page)),
			zap.Int("total_received", res.Messages),
		}
		if job.Total > 0 {
			fields = append(fields, zap.Float64("ratio", float64(res.Messages)/float64(job.Total)))
		}
		e.logger.Info("page stored", fields...)
	}

	if err := e.db.UpsertUsers(members); err != nil {
		return res, fmt.Errorf("store members: %w", err)
	}
	e.logger.Info("extraction complete",
		zap.Int("pages", res.Pages),
		zap.Int("messages", res.Messages),
		zap.Int("attachments", res.Attachments))
	return res, nil
}

// storePage writes one page in a single transaction, authors first.
// Only authors not already in seen are written; seen is updated once the
// page commits.
func (e *Extractor) storePage(ctx context.Context, page []groupme.Message, seen map[string]bool) (int, error) {
	fresh := make(map[string]bool, len(page))
	var authors []store.User
	var resolvedAtts []store.Attachment
	msgs := make([]store.Message, 0, len(page))

	for _, m := range page {
		if !seen[m.UserID] && !fresh[m.UserID] {
			fresh[m.UserID] = true
			authors = append(authors, store.User{
				ID:       m.UserID,
				Name:     m.Name,
				ImageURL: optional(m.AvatarURL),
			})
		}
		resolved, err := e.resolver.Resolve(ctx, m.ID, m.Attachments)
		if err != nil {
			return 0, err
		}
		resolvedAtts = append(resolvedAtts, resolved...)
		msgs = append(msgs, store.Message{
			ID:          m.ID,
			UserID:      m.UserID,
			Text:        optional(m.Text),
			Date:        float64(m.CreatedAt),
			Attachments: resolved,
		})
	}

	if err := e.db.UpsertPage(authors, msgs); err != nil {
		return 0, err
	}
	for id := range fresh {
		seen[id] = true
	}
	e.metrics.PagesFetched.Inc()
	e.metrics.MessagesStored.Add(float64(len(msgs)))
	for _, a := range resolvedAtts {
		e.metrics.AttachmentsStored.WithLabelValues(fmt.Sprint(a.Location.Valid)).Inc()
	}
	return len(resolvedAtts), nil
}

func membersToUsers(members []groupme.Member) []store.User {
	users := make([]store.User, 0, len(members))
	for _, m := range members {
		users = append(users, store.User{
			ID:       m.UserID,
			Name:     m.Nickname,
			ImageURL: optional(m.ImageURL),
		})
	}
	return users
}

func optional(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
