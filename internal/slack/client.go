// Package slack is a minimal Slack Web API client: the destination side
// of replay.
package slack

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matheus3301/grouparchive/internal/httpclient"
)

// DefaultBaseURL is the public Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

// ErrNameTaken is the API error returned when creating an existing channel.
const ErrNameTaken = "name_taken"

// Attachment is a legacy rich-content block rendered under the message.
type Attachment struct {
	Fallback   string `json:"fallback"`
	Title      string `json:"title"`
	AuthorName string `json:"author_name,omitempty"`
	AuthorIcon string `json:"author_icon,omitempty"`
	Text       string `json:"text"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Payload is the body of chat.postMessage.
type Payload struct {
	Channel     string       `json:"channel"`
	Text        string       `json:"text"`
	Username    string       `json:"username,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Response is the common part of every Web API response. A non-empty
// Error means Slack accepted the request but refused it.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
}

// DecodeError means the response body was not JSON. Slack answers that way
// when it is throttling the caller.
type DecodeError struct {
	Method string
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("slack %s: status %d: undecodable response: %v", e.Method, e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Client posts to the Web API with a bot or user token.
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

func (c *Client) call(ctx context.Context, method string, body any) (*Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("slack %s: encode: %w", method, err)
	}
	status, respBody, err := c.http.PostJSON(ctx, c.baseURL+"/"+method, map[string]string{
		"Authorization": "Bearer " + c.token,
	}, b)
	if err != nil {
		return nil, fmt.Errorf("slack %s: %w", method, err)
	}
	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &DecodeError{Method: method, Status: status, Err: err}
	}
	return &resp, nil
}

// CreateChannel creates a public channel. An existing channel is not an error.
func (c *Client) CreateChannel(ctx context.Context, name string) (*Response, error) {
	resp, err := c.call(ctx, "conversations.create", map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	if resp.Error == ErrNameTaken {
		resp.Error = ""
	}
	return resp, nil
}

// PostMessage posts payload to channel. Application-level failures are
// reported in the returned Response, not as an error.
func (c *Client) PostMessage(ctx context.Context, channel string, p Payload) (*Response, error) {
	p.Channel = channel
	return c.call(ctx, "chat.postMessage", p)
}
