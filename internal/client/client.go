// Package client is the typed HTTP client for the pigeon daemon API.
// The CLI and the MCP server both go through it, so command code never
// touches raw requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/sender"
	"github.com/nextlevelbuilder/pigeon/internal/store"
)

// APIError is a non-2xx response decoded from the daemon's error body.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("daemon returned %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one daemon.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client for the daemon at addr (host:port or full URL).
func New(addr, token string) *Client {
	base := addr
	if base == "" {
		base = "127.0.0.1:8750"
	}
	if !hasScheme(base) {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func hasScheme(addr string) bool {
	for i := range addr {
		if addr[i] == ':' {
			return i+2 < len(addr) && addr[i+1] == '/' && addr[i+2] == '/'
		}
	}
	return false
}

// CreateJob schedules a new job.
func (c *Client) CreateJob(ctx context.Context, spec store.JobSpec) (*store.Job, error) {
	var job store.Job
	if err := c.do(ctx, http.MethodPost, "/api/jobs", spec, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SendInstant delivers a message immediately, bypassing scheduling.
func (c *Client) SendInstant(ctx context.Context, contactName, message string) (*store.HistoryEntry, error) {
	body := map[string]string{
		"kind":        string(store.KindInstant),
		"contactName": contactName,
		"message":     message,
	}
	var entry store.HistoryEntry
	if err := c.do(ctx, http.MethodPost, "/api/jobs", body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListJobs returns all jobs, newest first.
func (c *Client) ListJobs(ctx context.Context) ([]store.Job, error) {
	var jobs []store.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob returns one job.
func (c *Client) GetJob(ctx context.Context, id string) (*store.Job, error) {
	var job store.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob applies a partial edit.
func (c *Client) UpdateJob(ctx context.Context, id string, patch store.JobPatch) (*store.Job, error) {
	var job store.Job
	if err := c.do(ctx, http.MethodPatch, "/api/jobs/"+id, patch, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SetJobStatus pauses or resumes a job.
func (c *Client) SetJobStatus(ctx context.Context, id string, status store.JobStatus) error {
	body := map[string]store.JobStatus{"status": status}
	return c.do(ctx, http.MethodPost, "/api/jobs/"+id+"/status", body, nil)
}

// DeleteJob removes a job and its attached history.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+id, nil, nil)
}

// ListHistory returns attempt records, newest first.
func (c *Client) ListHistory(ctx context.Context, filter store.HistoryFilter) ([]store.HistoryEntry, error) {
	path := "/api/history?"
	if filter.JobID != "" {
		path += "jobId=" + filter.JobID + "&"
	}
	if filter.Status != "" {
		path += "status=" + string(filter.Status) + "&"
	}
	if filter.Limit > 0 {
		path += fmt.Sprintf("limit=%d&", filter.Limit)
	}
	path = path[:len(path)-1]

	var entries []store.HistoryEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListSettings returns all settings.
func (c *Client) ListSettings(ctx context.Context) (map[string]string, error) {
	var settings map[string]string
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// PutSetting writes one setting.
func (c *Client) PutSetting(ctx context.Context, key, value string) error {
	return c.do(ctx, http.MethodPut, "/api/settings/"+key, map[string]string{"value": value}, nil)
}

// Status is the daemon's health and activity snapshot.
type Status struct {
	Version     string              `json:"version"`
	SenderReady bool                `json:"senderReady"`
	Session     *sender.SessionInfo `json:"session,omitempty"`
	Jobs        map[string]int      `json:"jobs"`
	Executing   int                 `json:"executing"`
	Subscribers int                 `json:"subscribers"`
	Attempts    map[string]int      `json:"attempts,omitempty"`
}

// GetStatus fetches the snapshot.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetSession fetches the chat session link state, including the pairing
// QR payload while linking is pending.
func (c *Client) GetSession(ctx context.Context) (*sender.SessionInfo, error) {
	var info sender.SessionInfo
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		json.Unmarshal(data, &eb)
		return &APIError{StatusCode: resp.StatusCode, Kind: eb.Kind, Message: eb.Error}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
