// Package attachment turns upstream attachments into snapshot rows,
// optionally saving image content next to the database.
package attachment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/matheus3301/grouparchive/internal/groupme"
	"github.com/matheus3301/grouparchive/internal/store"
	"go.uber.org/zap"
)

// Downloader fetches remote attachment content.
type Downloader interface {
	Download(ctx context.Context, remoteURL string) ([]byte, error)
}

// Resolver maps upstream attachments to store rows. Only images are kept.
type Resolver struct {
	downloader Downloader
	dir        string
	download   bool
	logger     *zap.Logger
}

// NewResolver creates a resolver. When download is false the downloader
// may be nil and nothing touches the filesystem.
func NewResolver(d Downloader, dir string, download bool, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		downloader: d,
		dir:        dir,
		download:   download,
		logger:     logger,
	}
}

// Resolve returns the store attachments for one message. Non-image kinds
// are dropped. A failed download or write aborts with an error.
func (r *Resolver) Resolve(ctx context.Context, messageID string, atts []groupme.Attachment) ([]store.Attachment, error) {
	var out []store.Attachment
	for _, a := range atts {
		if a.Type != store.AttachmentImage || a.URL == "" {
			continue
		}
		row := store.Attachment{
			MessageID: messageID,
			Type:      store.AttachmentImage,
			Content:   a.URL,
		}
		if r.download {
			loc, err := r.save(ctx, a.URL)
			if err != nil {
				return nil, fmt.Errorf("attachment of message %s: %w", messageID, err)
			}
			row.Location = sql.NullString{String: loc, Valid: true}
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *Resolver) save(ctx context.Context, remoteURL string) (string, error) {
	data, err := r.downloader.Download(ctx, remoteURL)
	if err != nil {
		return "", err
	}
	name := FileName(remoteURL)
	if filepath.Ext(name) == "" {
		name += mimetype.Detect(data).Extension()
	}
	loc := filepath.Join(r.dir, name)
	if err := os.WriteFile(loc, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", loc, err)
	}
	r.logger.Debug("attachment saved", zap.String("url", remoteURL), zap.String("path", loc), zap.Int("bytes", len(data)))
	return loc, nil
}

// imageExts are suffixes that name a format rather than an image.
var imageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"webp": true, "bmp": true, "heic": true, "tif": true, "tiff": true,
}

// FileName derives a local file name from an attachment URL: the part of
// the last path element after its final dot. GroupMe image URLs end in
// ".<hash>", so the name is unique per image. When that part is only a
// format such as "png", the name is a uuid v5 of the URL with that
// extension, so distinct images never share a file.
func FileName(remoteURL string) string {
	base := ""
	if u, err := url.Parse(remoteURL); err == nil {
		base = path.Base(u.Path)
	}
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(remoteURL)).String()
	if base == "" || base == "/" || base == "." {
		return id
	}
	if ext := strings.ToLower(base); imageExts[ext] {
		return id + "." + ext
	}
	return base
}

// EnsureDir creates the download directory. An existing directory is fine.
func EnsureDir(dir string) error {
	err := os.MkdirAll(dir, 0755)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return nil
	}
	return fmt.Errorf("create attachment dir: %w", err)
}
