// Package groupme is a minimal client for the GroupMe v3 REST API: the
// upstream side of extraction.
package groupme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/matheus3301/grouparchive/internal/httpclient"
	"github.com/valyala/fasthttp"
)

// DefaultBaseURL is the public GroupMe API root.
const DefaultBaseURL = "https://api.groupme.com/v3"

const (
	groupsPerPage = 100
	// MaxPageSize is the largest page the messages index serves.
	MaxPageSize = 100
)

// ErrGroupNotFound is returned by FindGroup when no group has the name.
var ErrGroupNotFound = errors.New("group not found")

// StatusError is an unexpected HTTP status from the API.
type StatusError struct {
	Code   int
	Path   string
	Errors []string
}

func (e *StatusError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("groupme %s: status %d: %v", e.Path, e.Code, e.Errors)
	}
	return fmt.Sprintf("groupme %s: status %d", e.Path, e.Code)
}

// Client talks to the GroupMe API with an access token.
type Client struct {
	http    *httpclient.Client
	baseURL string
	token   string
}

// New creates a client. An empty baseURL uses DefaultBaseURL.
func New(baseURL, token string, opts httpclient.Options) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if opts.Name == "" {
		opts.Name = "grouparchive"
	}
	return &Client{
		http:    httpclient.New(opts),
		baseURL: baseURL,
		token:   token,
	}
}

// get calls path and decodes the envelope's response into out.
// It reports false without error when the API answers 304 Not Modified,
// which the messages index uses to signal the end of history.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) (bool, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("token", c.token)
	code, body, err := c.http.Get(ctx, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("groupme %s: %w", path, err)
	}
	if code == fasthttp.StatusNotModified {
		return false, nil
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	if code != fasthttp.StatusOK {
		return false, &StatusError{Code: code, Path: path, Errors: env.Meta.Errors}
	}
	if decodeErr != nil {
		return false, fmt.Errorf("groupme %s: decode envelope: %w", path, decodeErr)
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return false, fmt.Errorf("groupme %s: decode response: %w", path, err)
	}
	return true, nil
}

// ListGroups returns every group the token's user belongs to.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var all []Group
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(groupsPerPage))
		q.Set("omit", "memberships")

		var groups []Group
		ok, err := c.get(ctx, "/groups", q, &groups)
		if err != nil {
			return nil, err
		}
		if !ok || len(groups) == 0 {
			return all, nil
		}
		all = append(all, groups...)
		if len(groups) < groupsPerPage {
			return all, nil
		}
	}
}

// FindGroup returns the group whose name matches exactly.
func (c *Client) FindGroup(ctx context.Context, name string) (*Group, error) {
	groups, err := c.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Name == name {
			return &g, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrGroupNotFound, name)
}

// Members returns the group's current members.
func (c *Client) Members(ctx context.Context, groupID string) ([]Member, error) {
	var g groupDetail
	if _, err := c.get(ctx, "/groups/"+url.PathEscape(groupID), nil, &g); err != nil {
		return nil, err
	}
	return g.Members, nil
}

// Messages returns up to limit messages older than beforeID, newest first.
// An empty beforeID starts from the newest message. An empty page means
// there is no older history.
func (c *Client) Messages(ctx context.Context, groupID, beforeID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if beforeID != "" {
		q.Set("before_id", beforeID)
	}
	var page messagesPage
	ok, err := c.get(ctx, "/groups/"+url.PathEscape(groupID)+"/messages", q, &page)
	if err != nil || !ok {
		return nil, err
	}
	return page.Messages, nil
}

// Download fetches remote attachment content. Image URLs are absolute and
// served without the API token.
func (c *Client) Download(ctx context.Context, remoteURL string) ([]byte, error) {
	code, body, err := c.http.Get(ctx, remoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", remoteURL, err)
	}
	if code != fasthttp.StatusOK {
		return nil, &StatusError{Code: code, Path: remoteURL}
	}
	return body, nil
}
