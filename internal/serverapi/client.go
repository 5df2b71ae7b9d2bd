// Package serverapi is the client for the server-authoritative document
// backend. The server owns the document table and assigns every
// lastModified timestamp; this client never computes one.
package serverapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"demosync/internal/config"
	"demosync/internal/demo"
)

const defaultTimeout = 15 * time.Second

// Demo is a full document as the server returns it.
type Demo struct {
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	LastModified int64           `json:"lastModified"`
	Storage      string          `json:"storage,omitempty"`
}

// ListEntry is one row of the server's document list. No body is included.
type ListEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LastModified int64  `json:"lastModified"`
	Storage      string `json:"storage"`
}

// Update is a partial update. Only non-nil fields are sent, and the server
// only changes supplied fields: omission is not clearing. This is what makes
// "rename without touching body" and "save body without renaming" work.
type Update struct {
	Data json.RawMessage `json:"data,omitempty"`
	Name *string         `json:"name,omitempty"`
}

// Client talks to the /api/demos wire contract.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at cfg.BaseURL.
func NewClient(cfg config.ServerAPIConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// StorageMode performs the boot-time storage-mode discovery query. It
// returns the server's reported mode ("postgres" when the server-backed
// mode is available); absence or failure returns "" and the caller stays in
// local-only mode.
func (c *Client) StorageMode(ctx context.Context) string {
	var cfg struct {
		StorageMode string `json:"storageMode"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &cfg); err != nil {
		return ""
	}
	return cfg.StorageMode
}

// List returns every document the server knows about.
func (c *Client) List(ctx context.Context) ([]ListEntry, error) {
	var entries []ListEntry
	if err := c.do(ctx, http.MethodGet, "/api/demos", nil, &entries); err != nil {
		return nil, fmt.Errorf("listing demos: %w", err)
	}
	return entries, nil
}

// Get fetches a document. Returns demo.ErrNotFound if the server has no
// document with this id; the caller decides whether that means "new empty
// document" or a hard error.
func (c *Client) Get(ctx context.Context, id string) (*Demo, error) {
	var d Demo
	if err := c.do(ctx, http.MethodGet, "/api/demos/"+id, nil, &d); err != nil {
		return nil, fmt.Errorf("fetching demo %s: %w", id, err)
	}
	return &d, nil
}

// Create registers a new document with a client-chosen id and seed body.
func (c *Client) Create(ctx context.Context, id, name string, data json.RawMessage) (*Demo, error) {
	payload := Demo{ID: id, Name: name, Data: data}
	var created Demo
	if err := c.do(ctx, http.MethodPost, "/api/demos", payload, &created); err != nil {
		return nil, fmt.Errorf("creating demo: %w", err)
	}
	return &created, nil
}

// UpdateDemo applies a partial update and returns the server-assigned
// timestamp.
func (c *Client) UpdateDemo(ctx context.Context, id string, update Update) (int64, error) {
	var result struct {
		LastModified int64 `json:"lastModified"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/demos/"+id, update, &result); err != nil {
		return 0, fmt.Errorf("updating demo %s: %w", id, err)
	}
	return result.LastModified, nil
}

// Delete removes a document. Deleting twice is not an error: a 404 from the
// server is treated as success.
func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/api/demos/"+id, nil, nil)
	if err != nil && !errors.Is(err, demo.ErrNotFound) {
		return fmt.Errorf("deleting demo %s: %w", id, err)
	}
	return nil
}

// ModifiedSince reports whether the server holds a version newer than
// cursor, using the metadata-only endpoint. The body is never transferred.
func (c *Client) ModifiedSince(ctx context.Context, id string, cursor int64) (demo.ModCheck, error) {
	var meta struct {
		LastModified int64 `json:"lastModified"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/demos/"+id+"/meta", nil, &meta); err != nil {
		return demo.ModCheck{}, fmt.Errorf("checking demo %s metadata: %w", id, err)
	}
	return demo.ModCheck{
		Modified:     meta.LastModified > cursor,
		LastModified: meta.LastModified,
	}, nil
}

// do runs one request against the API. payload (if non-nil) is sent as JSON;
// the response is decoded into out unless out is nil or the server returns
// 204.
func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &demo.TransientError{Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return demo.ErrNotFound
	case res.StatusCode >= 500:
		return &demo.TransientError{Err: fmt.Errorf("server returned %d", res.StatusCode)}
	case res.StatusCode < 200 || res.StatusCode > 299:
		return fmt.Errorf("server returned %d", res.StatusCode)
	}

	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
