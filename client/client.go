// Package client is a Go client for the lexkey HTTP API. Transient
// failures (connection errors, 5xx responses) are retried with
// exponential backoff; 4xx responses are returned immediately.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// List mirrors the API's list representation.
type List struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// Item mirrors the API's item representation.
type Item struct {
	ID        string `json:"id"`
	ListID    string `json:"list_id"`
	Payload   string `json:"payload"`
	Position  string `json:"position"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Placement describes where an item goes. Kind is one of "first",
// "last", "before", "after", "between".
type Placement struct {
	Kind    string `json:"kind"`
	Anchor  string `json:"anchor,omitempty"`
	AnchorB string `json:"anchor_b,omitempty"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lexkey: %s (status %d)", e.Message, e.Status)
}

// Client talks to a lexkey server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxTries   uint
}

// New creates a Client for the server at baseURL (e.g.
// "http://localhost:4580").
func New(baseURL string) *Client {
	return NewWithHTTPClient(&http.Client{Timeout: 30 * time.Second}, baseURL)
}

// NewWithHTTPClient creates a Client using the provided HTTP client, for
// callers that need a custom transport.
func NewWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		maxTries:   4,
	}
}

// newRetryBackOff creates the retry policy: 500ms → 10s, 2x, ±20% jitter.
func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// CreateList creates a new list.
func (c *Client) CreateList(ctx context.Context, slug, title string) (List, error) {
	var out List
	err := c.do(ctx, http.MethodPost, "/v1/lists",
		map[string]string{"slug": slug, "title": title}, &out)
	return out, err
}

// GetList fetches a list by slug.
func (c *Client) GetList(ctx context.Context, slug string) (List, error) {
	var out List
	err := c.do(ctx, http.MethodGet, "/v1/lists/"+url.PathEscape(slug), nil, &out)
	return out, err
}

// Lists fetches all lists.
func (c *Client) Lists(ctx context.Context) ([]List, error) {
	var out struct {
		Lists []List `json:"lists"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/lists", nil, &out)
	return out.Lists, err
}

// DeleteList removes a list and its items.
func (c *Client) DeleteList(ctx context.Context, slug string) error {
	return c.do(ctx, http.MethodDelete, "/v1/lists/"+url.PathEscape(slug), nil, nil)
}

// InsertItem adds an item to a list at the given placement.
func (c *Client) InsertItem(ctx context.Context, slug, payload string, place Placement) (Item, error) {
	var out Item
	err := c.do(ctx, http.MethodPost, "/v1/lists/"+url.PathEscape(slug)+"/items",
		map[string]any{"payload": payload, "place": place}, &out)
	return out, err
}

// Items fetches a list's items in order.
func (c *Client) Items(ctx context.Context, slug string) ([]Item, error) {
	var out struct {
		Items []Item `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/lists/"+url.PathEscape(slug)+"/items", nil, &out)
	return out.Items, err
}

// MoveItem reassigns an item's position.
func (c *Client) MoveItem(ctx context.Context, itemID string, place Placement) (Item, error) {
	var out Item
	err := c.do(ctx, http.MethodPost, "/v1/items/"+url.PathEscape(itemID)+"/move",
		map[string]any{"place": place}, &out)
	return out, err
}

// DeleteItem removes an item.
func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/items/"+url.PathEscape(itemID), nil, nil)
}

// Compact asks the server to rekey a list. It returns the number of items
// rekeyed (0 when the list was already compact and force is false).
func (c *Client) Compact(ctx context.Context, slug string, force bool) (int, error) {
	path := "/v1/lists/" + url.PathEscape(slug) + "/compact"
	if force {
		path += "?force=true"
	}
	var out struct {
		Compacted int `json:"compacted"`
	}
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out.Compacted, err
}

// Mid asks the server for a key between low and high (empty strings are
// open bounds).
func (c *Client) Mid(ctx context.Context, low, high string) (string, error) {
	var out struct {
		Mid string `json:"mid"`
	}
	q := url.Values{"low": {low}, "high": {high}}
	err := c.do(ctx, http.MethodGet, "/v1/rank/mid?"+q.Encode(), nil, &out)
	return out.Mid, err
}

// do performs one API call with retries. out may be nil for endpoints
// without a response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err // connection errors are retryable
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			apiErr := &APIError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
			if resp.StatusCode >= 500 {
				return struct{}{}, apiErr
			}
			return struct{}{}, backoff.Permanent(apiErr)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(newRetryBackOff()), backoff.WithMaxTries(c.maxTries))

	return err
}

func readErrorMessage(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil || body.Error == "" {
		return "request failed"
	}
	return body.Error
}
