// Package meili is a small client for the Meilisearch HTTP API covering
// what index seeding needs: index creation, settings, document replacement
// and task polling.
package meili

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Task statuses reported by the task queue.
const (
	TaskEnqueued   = "enqueued"
	TaskProcessing = "processing"
	TaskSucceeded  = "succeeded"
	TaskFailed     = "failed"
	TaskCanceled   = "canceled"
)

// CodeIndexAlreadyExists is the error code of a failed index creation when
// the index is already there.
const CodeIndexAlreadyExists = "index_already_exists"

// Client is the subset of the Meilisearch API the publisher uses.
type Client interface {
	CreateIndex(ctx context.Context, uid, primaryKey string) (*TaskInfo, error)
	UpdateSettings(ctx context.Context, uid string, s Settings) (*TaskInfo, error)
	DeleteAllDocuments(ctx context.Context, uid string) (*TaskInfo, error)
	AddDocuments(ctx context.Context, uid string, docs any, primaryKey string) (*TaskInfo, error)
	GetTask(ctx context.Context, taskUID int64) (*Task, error)
	// WaitForTask polls until the task leaves the queue.
	WaitForTask(ctx context.Context, taskUID int64) (*Task, error)
}

// Settings is the part of the index settings the pipeline manages.
type Settings struct {
	FilterableAttributes []string `json:"filterableAttributes,omitempty"`
	SearchableAttributes []string `json:"searchableAttributes,omitempty"`
	SortableAttributes   []string `json:"sortableAttributes,omitempty"`
}

// TaskInfo is the summary returned when a task is enqueued.
type TaskInfo struct {
	TaskUID    int64  `json:"taskUid"`
	IndexUID   string `json:"indexUid"`
	Status     string `json:"status"`
	Type       string `json:"type"`
	EnqueuedAt string `json:"enqueuedAt"`
}

// Task is the full state of a task.
type Task struct {
	UID      int64      `json:"uid"`
	IndexUID string     `json:"indexUid"`
	Status   string     `json:"status"`
	Type     string     `json:"type"`
	Error    *TaskError `json:"error"`
	Duration string     `json:"duration"`
}

// Done reports whether the task reached a final status.
func (t *Task) Done() bool {
	switch t.Status {
	case TaskSucceeded, TaskFailed, TaskCanceled:
		return true
	}
	return false
}

// TaskError describes why a task failed.
type TaskError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Link    string `json:"link"`
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("meili: task failed: %s (%s)", e.Message, e.Code)
}

// APIError is returned for a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Code       string `json:"code"`
	Type       string `json:"type"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("meili: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("meili: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Option configures the client.
type Option func(*client)

// WithAPIKey sets the bearer key.
func WithAPIKey(key string) Option {
	return func(c *client) { c.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithPollInterval sets how often WaitForTask polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *client) { c.pollInterval = d }
}

// WithTaskTimeout bounds WaitForTask.
func WithTaskTimeout(d time.Duration) Option {
	return func(c *client) { c.taskTimeout = d }
}

type client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	taskTimeout  time.Duration
}

// NewClient creates a client for the instance at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &client{
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		pollInterval: 50 * time.Millisecond,
		taskTimeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) CreateIndex(ctx context.Context, uid, primaryKey string) (*TaskInfo, error) {
	body := map[string]string{"uid": uid, "primaryKey": primaryKey}
	var info TaskInfo
	if err := c.do(ctx, http.MethodPost, "/indexes", body, &info); err != nil {
		return nil, eris.Wrapf(err, "meili: create index %s", uid)
	}
	return &info, nil
}

func (c *client) UpdateSettings(ctx context.Context, uid string, s Settings) (*TaskInfo, error) {
	var info TaskInfo
	if err := c.do(ctx, http.MethodPatch, "/indexes/"+url.PathEscape(uid)+"/settings", s, &info); err != nil {
		return nil, eris.Wrapf(err, "meili: update settings %s", uid)
	}
	return &info, nil
}

func (c *client) DeleteAllDocuments(ctx context.Context, uid string) (*TaskInfo, error) {
	var info TaskInfo
	if err := c.do(ctx, http.MethodDelete, "/indexes/"+url.PathEscape(uid)+"/documents", nil, &info); err != nil {
		return nil, eris.Wrapf(err, "meili: delete documents %s", uid)
	}
	return &info, nil
}

func (c *client) AddDocuments(ctx context.Context, uid string, docs any, primaryKey string) (*TaskInfo, error) {
	path := "/indexes/" + url.PathEscape(uid) + "/documents"
	if primaryKey != "" {
		path += "?" + url.Values{"primaryKey": {primaryKey}}.Encode()
	}
	var info TaskInfo
	if err := c.do(ctx, http.MethodPost, path, docs, &info); err != nil {
		return nil, eris.Wrapf(err, "meili: add documents %s", uid)
	}
	return &info, nil
}

func (c *client) GetTask(ctx context.Context, taskUID int64) (*Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+strconv.FormatInt(taskUID, 10), nil, &t); err != nil {
		return nil, eris.Wrapf(err, "meili: get task %d", taskUID)
	}
	return &t, nil
}

func (c *client) WaitForTask(ctx context.Context, taskUID int64) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, c.taskTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		t, err := c.GetTask(ctx, taskUID)
		if err != nil {
			return nil, err
		}
		if t.Done() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "meili: wait for task %d", taskUID)
		case <-ticker.C:
		}
	}
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "meili: encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "meili: build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "meili: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "meili: read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "meili: parse response")
	}
	return nil
}
