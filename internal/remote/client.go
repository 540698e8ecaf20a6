package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"arborescence/internal/model"
)

// Client talks to the persistence service HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var (
	_ Remote     = (*Client)(nil)
	_ Mover      = (*Client)(nil)
	_ Classifier = (*Client)(nil)
)

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient replaces the underlying http.Client (tests use httptest clients).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) ListTree(ctx context.Context) ([]model.Node, error) {
	var nodes []model.Node
	if err := c.do(ctx, "list tree", http.MethodGet, "/api/tree", nil, &nodes); err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = []model.Node{}
	}
	return nodes, nil
}

func (c *Client) CreateNode(ctx context.Context, req model.CreateRequest) (model.Node, error) {
	var n model.Node
	if err := c.do(ctx, "create node", http.MethodPost, "/api/nodes", req, &n); err != nil {
		return model.Node{}, err
	}
	return n, nil
}

func (c *Client) RenameNode(ctx context.Context, id string, req model.RenameRequest) (model.Node, error) {
	var n model.Node
	if err := c.do(ctx, "rename node", http.MethodPatch, "/api/nodes/"+url.PathEscape(id), req, &n); err != nil {
		return model.Node{}, err
	}
	return n, nil
}

func (c *Client) DeleteNode(ctx context.Context, id string) error {
	return c.do(ctx, "delete node", http.MethodDelete, "/api/nodes/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ReorderSiblings(ctx context.Context, req model.ReorderRequest) error {
	return c.do(ctx, "reorder siblings", http.MethodPut, "/api/siblings/order", req, nil)
}

func (c *Client) MoveNode(ctx context.Context, req model.MoveRequest) error {
	return c.do(ctx, "move node", http.MethodPost, "/api/nodes/"+url.PathEscape(req.NodeID)+"/move", req, nil)
}

func (c *Client) AttachRef(ctx context.Context, ref model.Ref) error {
	return c.do(ctx, "attach ref", http.MethodPost, "/api/nodes/"+url.PathEscape(ref.NodeID)+"/refs", ref, nil)
}

func (c *Client) DetachRef(ctx context.Context, ref model.Ref) error {
	path := fmt.Sprintf("/api/nodes/%s/refs/%s/%s", url.PathEscape(ref.NodeID), url.PathEscape(string(ref.Kind)), url.PathEscape(ref.RefID))
	return c.do(ctx, "detach ref", http.MethodDelete, path, nil, nil)
}

// do performs one JSON round trip. out may be nil when no body is expected.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func decodeError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	msg := strings.TrimSpace(eb.Error.Message)
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if resp.StatusCode >= 500 {
		return &TransientError{Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	code := strings.TrimSpace(eb.Error.Code)
	if code == "" {
		switch resp.StatusCode {
		case http.StatusNotFound:
			code = CodeNotFound
		case http.StatusConflict:
			code = CodeConflict
		default:
			code = CodeInvalid
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout {
		return &TransientError{Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	return &DomainError{Code: code, Message: msg}
}
