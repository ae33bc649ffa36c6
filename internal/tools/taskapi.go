package tools

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
)

// TaskAPI performs single requests against the backing task REST API.
// It reports the status code and raw body; interpreting them is up to the caller.
type TaskAPI struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

func NewTaskAPI(baseURL string, timeout time.Duration, httpClient *http.Client) *TaskAPI {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &TaskAPI{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		timeout:    timeout,
	}
}

// Response is the status code and raw body of a task API call.
type Response struct {
	StatusCode int
	Body       []byte
}

func (a *TaskAPI) do(ctx context.Context, method, path string, query url.Values, payload any, token string) (*Response, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func (a *TaskAPI) CreateTask(ctx context.Context, payload map[string]string, token string) (*Response, error) {
	return a.do(ctx, http.MethodPost, "/tasks", nil, payload, token)
}

func (a *TaskAPI) UpdateTask(ctx context.Context, taskID string, payload map[string]string, token string) (*Response, error) {
	return a.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(taskID), nil, payload, token)
}

func (a *TaskAPI) DeleteTask(ctx context.Context, taskID, token string) (*Response, error) {
	return a.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(taskID), nil, nil, token)
}

func (a *TaskAPI) ListTasks(ctx context.Context, query url.Values, token string) (*Response, error) {
	return a.do(ctx, http.MethodGet, "/tasks", query, nil, token)
}
