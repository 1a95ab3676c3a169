// internal/common/http/client.go

// Package http wraps the stdlib client for the outbound marketplace and
// affordability calls. Every collaborator authenticates with a bearer
// token, so the wrapper owns the Authorization header and the request
// plumbing the callers would otherwise repeat.
package http

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

type Client struct {
	httpClient *http.Client
	bearer     string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewBearerClient returns a client that attaches "Authorization: Bearer
// <token>" to every request it builds.
func NewBearerClient(timeout time.Duration, token string) *Client {
	c := NewClient(timeout)
	c.bearer = token
	return c
}

// Get issues an authenticated GET against url.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// PostJSON issues an authenticated POST with a JSON payload.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

// Do executes a prepared request, filling in the bearer header unless
// the caller already set one.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.bearer != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	return c.httpClient.Do(req)
}
