// Package client is a typed HTTP client for the QuickTask tasks API and the
// analytics service.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"quicktask/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	maxErrorBody         = 4 << 10
)

// Client calls the tasks API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client for the API rooted at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, token: token, http: &http.Client{Timeout: timeout}}
}

type taskResponse struct {
	Message string      `json:"message"`
	Task    domain.Task `json:"task"`
}

// ListTasks resolves the caller's tasks with the given criteria. Only criteria
// fields that carry a value are sent.
func (c *Client) ListTasks(ctx context.Context, cr domain.Criteria) (domain.TaskList, error) {
	var list domain.TaskList
	err := c.do(ctx, http.MethodGet, "/api/tasks", criteriaQuery(cr), nil, nil, &list)
	if list.Tasks == nil {
		list.Tasks = []domain.Task{}
	}
	return list, err
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, nil, nil, &t)
	return t, err
}

// CreateTask creates a task. Each call carries a fresh idempotency key.
func (c *Client) CreateTask(ctx context.Context, d domain.TaskDraft) (domain.Task, error) {
	var resp taskResponse
	headers := http.Header{}
	headers.Set(idempotencyKeyHeader, uuid.NewString())
	err := c.do(ctx, http.MethodPost, "/api/tasks", nil, headers, d, &resp)
	return resp.Task, err
}

// UpdateTask sends the present fields of p and returns the stored record.
func (c *Client) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	var resp taskResponse
	err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(id), nil, nil, p, &resp)
	return resp.Task, err
}

// DeleteTask removes a task and returns the deleted record.
func (c *Client) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	var resp taskResponse
	err := c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil, nil, &resp)
	return resp.Task, err
}

func criteriaQuery(cr domain.Criteria) url.Values {
	q := url.Values{}
	if s, ok := cr.StatusFilter(); ok {
		q.Set("status", string(s))
	}
	if p, ok := cr.PriorityFilter(); ok {
		q.Set("priority", string(p))
	}
	if s, ok := cr.SearchFilter(); ok {
		q.Set("search", s)
	}
	if cr.SortBy != nil && *cr.SortBy != "" {
		q.Set("sortBy", string(*cr.SortBy))
	}
	if cr.SortOrder != nil && *cr.SortOrder != "" {
		q.Set("sortOrder", string(*cr.SortOrder))
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers http.Header, body, out any) error {
	return doJSON(ctx, c.http, method, c.baseURL+path, query, c.token, headers, body, out)
}

func doJSON(ctx context.Context, hc *http.Client, method, target string, query url.Values, token string, headers http.Header, body, out any) error {
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var eb errorBody
		_ = sonic.Unmarshal(raw, &eb)
		return &APIError{StatusCode: resp.StatusCode, Message: eb.text()}
	}
	if out == nil {
		return nil
	}
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
