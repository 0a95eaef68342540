// Package client is a typed HTTP client for the taskmind API: task CRUD,
// hierarchy queries, and the query oracle.
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

	"taskmind/pkg/history"
	"taskmind/pkg/task"
)

// maxResponseSize bounds API response bodies.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the server, e.g. completing
// an already-completed task.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// QueryResult is one oracle turn as seen by the client. Context is the
// opaque token to echo on the next turn; it is never inspected here.
type QueryResult struct {
	Response         string          `json:"response"`
	RequiresFollowUp bool            `json:"requiresFollowUp"`
	Context          json.RawMessage `json:"context"`
	ResultTask       *task.Task      `json:"resultTask"`
}

// Client talks to a taskmind server.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpc = c }
}

// New creates a Client for the server at baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 3 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tasks returns all tasks.
func (c *Client) Tasks(ctx context.Context) ([]task.Task, error) {
	var out []task.Task
	return out, c.do(ctx, http.MethodGet, "/api/tasks", nil, &out)
}

// Active returns tasks that are not completed.
func (c *Client) Active(ctx context.Context) ([]task.Task, error) {
	var out []task.Task
	return out, c.do(ctx, http.MethodGet, "/api/tasks/active", nil, &out)
}

// Roots returns root tasks, including orphans displayed as roots.
func (c *Client) Roots(ctx context.Context) ([]task.Task, error) {
	var out []task.Task
	return out, c.do(ctx, http.MethodGet, "/api/tasks/root", nil, &out)
}

// Subtasks returns the children of the given task.
func (c *Client) Subtasks(ctx context.Context, id int64) ([]task.Task, error) {
	var out []task.Task
	return out, c.do(ctx, http.MethodGet, fmt.Sprintf("/api/tasks/%d/subtasks", id), nil, &out)
}

// ByPriority returns tasks with the given priority.
func (c *Client) ByPriority(ctx context.Context, p task.Priority) ([]task.Task, error) {
	var out []task.Task
	return out, c.do(ctx, http.MethodGet, "/api/tasks/priority/"+string(p), nil, &out)
}

// Overdue returns active tasks whose deadline has passed.
func (c *Client) Overdue(ctx context.Context) ([]task.Task, error) {
	var out []task.Task
	return out, c.do(ctx, http.MethodGet, "/api/tasks/overdue", nil, &out)
}

// Get returns a single task.
func (c *Client) Get(ctx context.Context, id int64) (*task.Task, error) {
	var out task.Task
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create persists a new task. The description is validated before any
// network call.
func (c *Client) Create(ctx context.Context, t task.Task) (*task.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var out task.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update modifies the given fields of a task.
func (c *Client) Update(ctx context.Context, id int64, upd task.Update) (*task.Task, error) {
	var out task.Task
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/tasks/%d", id), upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Complete marks a task completed.
func (c *Client) Complete(ctx context.Context, id int64) (*task.Task, error) {
	var out task.Task
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/tasks/%d/complete", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Revert clears a task's completed state.
func (c *Client) Revert(ctx context.Context, id int64) (*task.Task, error) {
	var out task.Task
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/tasks/%d/revert", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query sends one oracle turn. conversationContext must be the context from
// the previous turn's result, or nil on the first turn. The utterance is
// validated before any network call.
func (c *Client) Query(ctx context.Context, query string, conversationContext json.RawMessage) (*QueryResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	body := map[string]any{"query": query}
	if len(conversationContext) > 0 {
		body["context"] = conversationContext
	}
	var out QueryResult
	if err := c.do(ctx, http.MethodPost, "/api/query", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns server counters (tasks, active, events).
func (c *Client) Status(ctx context.Context) (map[string]int, error) {
	var out map[string]int
	return out, c.do(ctx, http.MethodGet, "/api/status", nil, &out)
}

// Events returns recent activity, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]history.Event, error) {
	var out []history.Event
	return out, c.do(ctx, http.MethodGet, fmt.Sprintf("/api/events?limit=%d", limit), nil, &out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var parsed struct {
			Error string `json:"error"`
		}
		msg := string(respBody)
		if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.Error != "" {
			msg = parsed.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
