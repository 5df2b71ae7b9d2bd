// Package remotefile talks to a Drive-style file hosting API. Each document
// maps to one remote file inside a well-known container folder. Every call
// requires a caller-supplied bearer credential; the client never caches or
// refreshes tokens.
package remotefile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"demosync/internal/config"
	"demosync/internal/demo"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"

	// FileSuffix marks files in the container that belong to this
	// application. Listing filters on it.
	FileSuffix = ".demo.json"

	defaultTimeout  = 15 * time.Second
	multipartBound  = "---demosync_boundary"
	listPageSize    = 100
	defaultBaseURL  = "https://www.googleapis.com/drive/v3/files"
	defaultUpload   = "https://www.googleapis.com/upload/drive/v3/files"
	defaultFolder   = "Demo Builder Projects"
)

// FileInfo is one listing row: the remote handle plus the document identity
// carried in the file's application properties.
type FileInfo struct {
	FileID       string
	Name         string
	ModifiedTime string
	DocumentID   string
	DocumentName string
}

// FileMeta is the metadata-only view used by the poller.
type FileMeta struct {
	FileID       string
	Name         string
	ModifiedTime string
	Trashed      bool
}

// WriteResult is the file store's response to a create or update.
type WriteResult struct {
	FileID       string
	ModifiedTime string
}

// StatusError carries the backend's HTTP status so callers can distinguish
// "not found / trashed" from transient failure.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("file store error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("file store error %d", e.StatusCode)
}

// Client is the remote file store adapter. The container folder handle is
// resolved lazily on first use and cached for the process lifetime; it is
// immutable once resolved and safe to share across documents.
type Client struct {
	baseURL    string
	uploadURL  string
	folderName string
	httpClient *http.Client

	mu       sync.Mutex
	folderID string
}

// NewClient creates a client from config. Empty fields fall back to the
// public Drive v3 endpoints and the default container name.
func NewClient(cfg config.RemoteConfig) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		uploadURL:  cfg.UploadURL,
		folderName: cfg.FolderName,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.uploadURL == "" {
		c.uploadURL = defaultUpload
	}
	if c.folderName == "" {
		c.folderName = defaultFolder
	}
	return c
}

// EnsureFolder finds or creates the container folder and returns its handle.
// The result is cached; concurrent creators can race, which is accepted
// because containers are idempotent in effect (last writer wins).
func (c *Client) EnsureFolder(ctx context.Context, token string) (string, error) {
	c.mu.Lock()
	cached := c.folderID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	q := fmt.Sprintf("name='%s' and mimeType='%s' and 'root' in parents and trashed=false",
		c.folderName, folderMimeType)
	u := fmt.Sprintf("%s?q=%s&fields=files(id)&pageSize=1", c.baseURL, url.QueryEscape(q))

	var listing struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	if err := c.do(ctx, token, http.MethodGet, u, "", nil, &listing); err != nil {
		return "", fmt.Errorf("searching for container folder: %w", err)
	}

	var folderID string
	if len(listing.Files) > 0 {
		folderID = listing.Files[0].ID
	} else {
		payload, _ := json.Marshal(map[string]string{
			"name":     c.folderName,
			"mimeType": folderMimeType,
		})
		var created struct {
			ID string `json:"id"`
		}
		if err := c.do(ctx, token, http.MethodPost, c.baseURL, "application/json", bytes.NewReader(payload), &created); err != nil {
			return "", fmt.Errorf("creating container folder: %w", err)
		}
		folderID = created.ID
	}

	c.mu.Lock()
	c.folderID = folderID
	c.mu.Unlock()
	return folderID, nil
}

// ClearFolderCache drops the cached container handle so the next call
// resolves it again.
func (c *Client) ClearFolderCache() {
	c.mu.Lock()
	c.folderID = ""
	c.mu.Unlock()
}

// ListFiles returns the application's files in the container, newest first.
func (c *Client) ListFiles(ctx context.Context, token, folderID string) ([]FileInfo, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false and name contains '%s'", folderID, FileSuffix)
	fields := "files(id,name,modifiedTime,appProperties)"
	u := fmt.Sprintf("%s?q=%s&fields=%s&pageSize=%d&orderBy=modifiedTime desc",
		c.baseURL, url.QueryEscape(q), url.QueryEscape(fields), listPageSize)

	var listing struct {
		Files []struct {
			ID            string            `json:"id"`
			Name          string            `json:"name"`
			ModifiedTime  string            `json:"modifiedTime"`
			AppProperties map[string]string `json:"appProperties"`
		} `json:"files"`
	}
	if err := c.do(ctx, token, http.MethodGet, u, "", nil, &listing); err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	infos := make([]FileInfo, 0, len(listing.Files))
	for _, f := range listing.Files {
		info := FileInfo{
			FileID:       f.ID,
			Name:         f.Name,
			ModifiedTime: f.ModifiedTime,
			DocumentID:   f.AppProperties["demoId"],
			DocumentName: f.AppProperties["demoName"],
		}
		// Files created outside this client have no app properties;
		// fall back to the file identity.
		if info.DocumentID == "" {
			info.DocumentID = f.ID
		}
		if info.DocumentName == "" {
			info.DocumentName = strings.TrimSuffix(f.Name, FileSuffix)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ReadFile downloads the file content.
func (c *Client) ReadFile(ctx context.Context, token, fileID string) ([]byte, error) {
	u := fmt.Sprintf("%s/%s?alt=media", c.baseURL, fileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building read request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &demo.TransientError{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, classifyStatus(res.StatusCode, "")
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &demo.TransientError{Err: err}
	}
	return data, nil
}

// Metadata fetches the modification time and trashed flag without content.
func (c *Client) Metadata(ctx context.Context, token, fileID string) (FileMeta, error) {
	u := fmt.Sprintf("%s/%s?fields=id,modifiedTime,name,trashed", c.baseURL, fileID)

	var meta struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		ModifiedTime string `json:"modifiedTime"`
		Trashed      bool   `json:"trashed"`
	}
	if err := c.do(ctx, token, http.MethodGet, u, "", nil, &meta); err != nil {
		return FileMeta{}, fmt.Errorf("fetching file metadata: %w", err)
	}
	return FileMeta{FileID: meta.ID, Name: meta.Name, ModifiedTime: meta.ModifiedTime, Trashed: meta.Trashed}, nil
}

// CreateFile uploads a new file via multipart/related: a metadata part
// naming the file and its container, then the content part.
func (c *Client) CreateFile(ctx context.Context, token, folderID, name string, content []byte, appProps map[string]string) (WriteResult, error) {
	metadata, _ := json.Marshal(map[string]any{
		"name":          name,
		"parents":       []string{folderID},
		"mimeType":      "application/json",
		"appProperties": appProps,
	})

	var buf bytes.Buffer
	for _, part := range []struct {
		contentType string
		data        []byte
	}{
		{"application/json; charset=UTF-8", metadata},
		{"application/json", content},
	} {
		fmt.Fprintf(&buf, "--%s\r\nContent-Type: %s\r\n\r\n", multipartBound, part.contentType)
		buf.Write(part.data)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--", multipartBound)

	u := fmt.Sprintf("%s?uploadType=multipart&fields=id,modifiedTime", c.uploadURL)
	contentType := fmt.Sprintf("multipart/related; boundary=%s", multipartBound)

	var result struct {
		ID           string `json:"id"`
		ModifiedTime string `json:"modifiedTime"`
	}
	if err := c.do(ctx, token, http.MethodPost, u, contentType, &buf, &result); err != nil {
		return WriteResult{}, fmt.Errorf("creating file: %w", err)
	}
	return WriteResult{FileID: result.ID, ModifiedTime: result.ModifiedTime}, nil
}

// UpdateFile replaces the file content via a media upload.
func (c *Client) UpdateFile(ctx context.Context, token, fileID string, content []byte) (WriteResult, error) {
	u := fmt.Sprintf("%s/%s?uploadType=media&fields=id,modifiedTime", c.uploadURL, fileID)

	var result struct {
		ID           string `json:"id"`
		ModifiedTime string `json:"modifiedTime"`
	}
	if err := c.do(ctx, token, http.MethodPatch, u, "application/json", bytes.NewReader(content), &result); err != nil {
		return WriteResult{}, fmt.Errorf("updating file: %w", err)
	}
	return WriteResult{FileID: result.ID, ModifiedTime: result.ModifiedTime}, nil
}

// Trash moves the file to the trash. The file keeps its handle, so a trashed
// document can still be identified by later metadata probes.
func (c *Client) Trash(ctx context.Context, token, fileID string) error {
	payload, _ := json.Marshal(map[string]bool{"trashed": true})
	u := fmt.Sprintf("%s/%s", c.baseURL, fileID)
	if err := c.do(ctx, token, http.MethodPatch, u, "application/json", bytes.NewReader(payload), nil); err != nil {
		return fmt.Errorf("trashing file: %w", err)
	}
	return nil
}

// Rename changes the file's display name without touching content.
func (c *Client) Rename(ctx context.Context, token, fileID, name string) error {
	payload, _ := json.Marshal(map[string]string{"name": name})
	u := fmt.Sprintf("%s/%s?fields=id,name", c.baseURL, fileID)
	if err := c.do(ctx, token, http.MethodPatch, u, "application/json", bytes.NewReader(payload), nil); err != nil {
		return fmt.Errorf("renaming file: %w", err)
	}
	return nil
}

// do runs one authenticated request and decodes the JSON response into out
// (skipped when out is nil or the backend returns 204).
func (c *Client) do(ctx context.Context, token, method, url, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &demo.TransientError{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return classifyStatus(res.StatusCode, readErrorMessage(res.Body))
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readErrorMessage extracts the backend's error message, if the body carries
// the usual {"error": {"message": ...}} envelope.
func readErrorMessage(r io.Reader) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return ""
	}
	return body.Error.Message
}

// classifyStatus maps a backend status code into the error taxonomy, keeping
// the status available via errors.As on *StatusError.
func classifyStatus(code int, msg string) error {
	se := &StatusError{StatusCode: code, Message: msg}
	switch {
	case code == http.StatusUnauthorized:
		return &demo.AuthError{Err: se}
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: %s", demo.ErrNotFound, se.Error())
	case code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout:
		return &demo.TransientError{Err: se}
	default:
		return se
	}
}
