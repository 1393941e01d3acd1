// Package a2aclient is a small Go client for the PDF agent: A2A JSON-RPC calls
// on the root endpoint plus the read-only task inspection API.
package a2aclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"mcp-a2a/internal/a2a"
	"mcp-a2a/internal/task"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// tasks/send blocks until the task finishes, so it is much longer than a
// typical REST timeout.
const DefaultHTTPTimeout = 5 * time.Minute

type (
	Task           = task.Task
	Message        = task.Message
	Part           = task.Part
	TaskStats      = task.TaskStats
	AgentCard      = a2a.AgentCard
	TaskSendParams = a2a.TaskSendParams
	RPCError       = a2a.JSONRPCError
)

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("a2a api error (%d): %s", e.StatusCode, e.Message)
}

// Client talks to a single agent base URL.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	newID      func() string
	token      string
}

// NewClient instantiates a client. When httpClient is nil, a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient, newID: uuid.NewString}, nil
}

// SetToken configures the bearer token sent with every request. An empty
// token disables the Authorization header.
func (c *Client) SetToken(token string) {
	c.token = strings.TrimSpace(token)
}

// AgentCard fetches the agent's discovery document.
func (c *Client) AgentCard(ctx context.Context) (AgentCard, error) {
	var card AgentCard
	if err := c.get(ctx, a2a.AgentCardPath, nil, &card); err != nil {
		return AgentCard{}, err
	}
	return card, nil
}

// SendTask calls tasks/send and returns the task in its final state. An empty
// params.ID is filled with a fresh UUID.
func (c *Client) SendTask(ctx context.Context, params TaskSendParams) (*Task, error) {
	if params.ID == "" {
		params.ID = c.newID()
	}
	if params.Message.Role == "" {
		params.Message.Role = task.RoleUser
	}
	var result Task
	if err := c.call(ctx, a2a.MethodTasksSend, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendText is a shortcut for a single-text-part user message.
func (c *Client) SendText(ctx context.Context, taskID, text string) (*Task, error) {
	return c.SendTask(ctx, TaskSendParams{
		ID:      taskID,
		Message: Message{Role: task.RoleUser, Parts: []Part{task.TextPart(text)}},
	})
}

// GetTask calls tasks/get. historyLength may be nil to receive the full history.
func (c *Client) GetTask(ctx context.Context, taskID string, historyLength *int) (*Task, error) {
	var result Task
	params := a2a.TaskQueryParams{ID: taskID, HistoryLength: historyLength}
	if err := c.call(ctx, a2a.MethodTasksGet, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelTask calls tasks/cancel.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*Task, error) {
	var result Task
	if err := c.call(ctx, a2a.MethodTasksCancel, a2a.TaskIDParams{ID: taskID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTasks queries /api/v1/tasks. Supported keys: state, session, limit,
// offset, order, q, has_artifacts, since, until.
func (c *Client) ListTasks(ctx context.Context, query url.Values) ([]Task, error) {
	var tasks []Task
	if err := c.get(ctx, "/api/v1/tasks", query, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Stats queries /api/v1/tasks/stats.
func (c *Client) Stats(ctx context.Context, query url.Values) (TaskStats, error) {
	var stats TaskStats
	if err := c.get(ctx, "/api/v1/tasks/stats", query, &stats); err != nil {
		return TaskStats{}, err
	}
	return stats, nil
}

// call performs one JSON-RPC round trip. Protocol errors are returned as *RPCError.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(struct {
		a2a.JSONRPCMessage
		Method string `json:"method"`
		Params any    `json:"params"`
	}{JSONRPCMessage: a2a.NewJSONRPCMessage(c.newID()), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/", nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := c.do(req, &envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return fmt.Errorf("%s: empty result", method)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join("/", c.baseURL.Path, endpoint)}
	if endpoint == "/" && rel.Path != "/" {
		rel.Path += "/"
	}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
