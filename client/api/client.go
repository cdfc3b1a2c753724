// Package api is the typed HTTP client for the streaming server. It owns
// the session token lifecycle and exposes the library, artwork and audio
// endpoints to client code.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"Ariami/model"
)

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// DeviceInfo identifies this client when establishing a session.
type DeviceInfo struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Version    string `json:"version"`
	Platform   string `json:"platform"`
}

// LibraryView mirrors the server's library response.
type LibraryView struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	SongCount   int               `json:"songCount"`
	Albums      []*model.Album    `json:"albums"`
	Folders     *model.FolderNode `json:"folders,omitempty"`
}

type connectResponse struct {
	SessionID        string `json:"sessionId"`
	Token            string `json:"token"`
	HeartbeatSeconds int    `json:"heartbeatSeconds"`
}

// Client talks to one server. Safe for concurrent use; the token is
// replaced atomically on reconnect.
type Client struct {
	baseURL string
	httpc   *http.Client

	mu        sync.RWMutex
	token     string
	sessionID string
	heartbeat time.Duration
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://192.168.1.10:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 2 * time.Minute},
	}
}

// Connect establishes a session and stores its token for later calls.
func (c *Client) Connect(ctx context.Context, device DeviceInfo) error {
	body, err := json.Marshal(device)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/connect", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var cr connectResponse
	if err := c.do(req, &cr); err != nil {
		return err
	}

	c.mu.Lock()
	c.token = cr.Token
	c.sessionID = cr.SessionID
	c.heartbeat = time.Duration(cr.HeartbeatSeconds) * time.Second
	c.mu.Unlock()
	return nil
}

// SessionID returns the current session id, empty before Connect.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// HeartbeatInterval returns the cadence the server asked for.
func (c *Client) HeartbeatInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heartbeat
}

// Heartbeat tells the server this client is still alive.
func (c *Client) Heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/heartbeat", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Disconnect ends the session. The stored token is cleared either way.
func (c *Client) Disconnect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/disconnect", nil)
	if err != nil {
		return err
	}
	err = c.do(req, nil)
	c.mu.Lock()
	c.token = ""
	c.sessionID = ""
	c.mu.Unlock()
	return err
}

// Library fetches the album list and folder tree.
func (c *Client) Library(ctx context.Context) (*LibraryView, error) {
	var view LibraryView
	if err := c.getJSON(ctx, "/api/library", &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Album fetches one album with its songs.
func (c *Client) Album(ctx context.Context, id string) (*model.AlbumWithSongs, error) {
	var album model.AlbumWithSongs
	if err := c.getJSON(ctx, "/api/albums/"+id, &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// Song fetches one song's metadata.
func (c *Client) Song(ctx context.Context, id string) (*model.Song, error) {
	var song model.Song
	if err := c.getJSON(ctx, "/api/songs/"+id, &song); err != nil {
		return nil, err
	}
	return &song, nil
}

// Stream downloads a song's audio. A non-zero length requests just that
// byte range; length -1 with a non-zero offset requests everything from the
// offset on.
func (c *Client) Stream(ctx context.Context, songID string, offset, length int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream/"+songID, nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 || length > 0 {
		if length > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}
	}
	return c.doBytes(req)
}

// Artwork downloads an album's artwork bytes.
func (c *Client) Artwork(ctx context.Context, albumID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/albums/"+albumID+"/artwork", nil)
	if err != nil {
		return nil, err
	}
	return c.doBytes(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	c.authorize(req)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doBytes(req *http.Request) ([]byte, error) {
	c.authorize(req)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) authorize(req *http.Request) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "http_error"
		apiErr.Message = resp.Status
	}
	return apiErr
}
