// Package httpclient is the paced fasthttp transport shared by the
// GroupMe and Slack API clients.
package httpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// Options configures a Client. Zero RPS disables pacing.
type Options struct {
	Name    string
	Timeout time.Duration
	RPS     float64
	Burst   int
	// Dial overrides the network dialer, used by tests to serve requests in memory.
	Dial fasthttp.DialFunc
}

// Client sends requests through fasthttp, waiting on a token bucket first
// when pacing is enabled.
type Client struct {
	http    *fasthttp.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// New creates a paced client.
func New(o Options) *Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		http: &fasthttp.Client{
			Name:         o.Name,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			Dial:         o.Dial,
		},
		timeout: timeout,
	}
	if o.RPS > 0 {
		burst := o.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(o.RPS), burst)
	}
	return c
}

// Do performs req and fills resp. Callers own both and must release them.
func (c *Client) Do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("%s %s: %w", req.Header.Method(), req.URI().Path(), err)
	}
	return nil
}

// Get fetches uri and returns the status code and a copy of the body.
func (c *Client) Get(ctx context.Context, uri string, header map[string]string) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	if err := c.Do(ctx, req, resp); err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), append([]byte(nil), resp.Body()...), nil
}

// PostJSON sends body as application/json and returns the status code and
// a copy of the response body.
func (c *Client) PostJSON(ctx context.Context, uri string, header map[string]string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json; charset=utf-8")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	req.SetBody(body)
	if err := c.Do(ctx, req, resp); err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), append([]byte(nil), resp.Body()...), nil
}
