// Package client is a typed HTTP client for the toolflow API.
package client

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
	"sync"
	"time"

	"github.com/google/uuid"
)

// APIError is a non-2xx answer.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

type Tool struct {
	ToolID       string    `json:"tool_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Pricing      string    `json:"pricing"`
	Capabilities string    `json:"capabilities"`
	Outputs      string    `json:"outputs,omitempty"`
	Tags         []string  `json:"tags"`
	EaseOfUse    string    `json:"ease_of_use"`
	CreatedAt    time.Time `json:"created_at"`
}

type Node struct {
	NodeID      uuid.UUID `json:"node_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

type NewNode struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Workflow struct {
	WorkflowID   uuid.UUID  `json:"workflow_id"`
	UserID       *uuid.UUID `json:"user_id"`
	Title        string     `json:"title"`
	Category     string     `json:"category"`
	Description  string     `json:"description"`
	IsPredefined bool       `json:"is_predefined"`
	CreatedAt    time.Time  `json:"created_at"`
	Nodes        []Node     `json:"nodes"`
}

type NewWorkflow struct {
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Nodes       []NewNode `json:"nodes"`
}

// WorkflowPatch updates scalar fields; nil fields are left unchanged.
type WorkflowPatch struct {
	Title       *string `json:"title,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ToolQuery struct {
	Pricing   string
	Tags      string
	Name      string
	EaseOfUse string
	Page      int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client is safe for concurrent use.
type Client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Register creates an account and keeps the returned token for later calls.
func (c *Client) Register(ctx context.Context, email, password string, firstName, lastName *string) (string, error) {
	body := map[string]any{"email": email, "password": password}
	if firstName != nil {
		body["first_name"] = *firstName
	}
	if lastName != nil {
		body["last_name"] = *lastName
	}
	var out tokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/users", body, &out); err != nil {
		return "", err
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

// Login keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out tokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/users/login", map[string]string{"email": email, "password": password}, &out); err != nil {
		return "", err
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/users/me", nil, nil)
}

func (c *Client) SearchTools(ctx context.Context, q ToolQuery) ([]Tool, error) {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("pricing", q.Pricing)
	set("tags", q.Tags)
	set("name", q.Name)
	set("ease_of_use", q.EaseOfUse)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	path := "/api/ai_tools"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

func (c *Client) GetTool(ctx context.Context, toolID string) (*Tool, error) {
	var out Tool
	if err := c.do(ctx, http.MethodGet, "/api/ai_tools/"+url.PathEscape(toolID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateWorkflow(ctx context.Context, w NewWorkflow) (*Workflow, error) {
	if w.Nodes == nil {
		w.Nodes = []NewNode{}
	}
	var out Workflow
	if err := c.do(ctx, http.MethodPost, "/api/workflows", w, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateWorkflow(ctx context.Context, id uuid.UUID, patch WorkflowPatch) (*Workflow, error) {
	var out Workflow
	if err := c.do(ctx, http.MethodPut, "/api/workflows/"+id.String(), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	var out Workflow
	if err := c.do(ctx, http.MethodGet, "/api/workflows/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	var out []Workflow
	if err := c.do(ctx, http.MethodGet, "/api/workflows", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListTemplates(ctx context.Context) ([]Workflow, error) {
	var out []Workflow
	if err := c.do(ctx, http.MethodGet, "/api/workflows/templates", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/workflows/"+id.String(), nil, nil)
}

func (c *Client) DuplicateWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	var out Workflow
	if err := c.do(ctx, http.MethodPost, "/api/workflows/"+id.String()+"/duplicate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) NodeSuggestions(ctx context.Context, workflowID, nodeID uuid.UUID) ([]Tool, error) {
	var out struct {
		Suggestions []Tool `json:"suggestions"`
	}
	path := fmt.Sprintf("/api/workflows/%s/nodes/%s/suggestions", workflowID, nodeID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
