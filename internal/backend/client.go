package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/geoffsee/open-gsio/internal/log"
)

// maxErrorBodySize caps how much of a failed response body is read when
// building the error, preventing unbounded allocation from rogue responses.
const maxErrorBodySize int64 = 10 * 1024 * 1024

const defaultRequestTimeout = 5 * time.Minute

// Header is one extra request header an adapter attaches to every call,
// such as Anthropic's x-api-key and anthropic-version pair.
type Header struct {
	Key   string
	Value string
}

// Client is a thin HTTP client bound to one provider endpoint. Adapters
// construct it with the auth headers their backend expects.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    []Header
	logger     log.Logger
}

// NewClient builds a client for the given base URL with adapter-supplied
// headers applied to every request.
func NewClient(baseURL string, headers ...Header) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		baseURL:    baseURL,
		headers:    headers,
		logger:     log.NewNop(),
	}
}

// WithHTTPClient overrides the underlying HTTP client, used by tests to
// point at a local server.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the endpoint this client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PostStream performs a streaming POST and returns the response with its
// body left open for SSE reading. The caller owns closing the body. Non-2xx
// responses are drained, closed and returned as a *ClientError.
func (c *Client) PostStream(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for _, h := range c.headers {
		req.Header.Set(h.Key, h.Value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send stream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errorBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		if readErr != nil {
			return nil, fmt.Errorf("backend status %d (failed to read body: %v)", resp.StatusCode, readErr)
		}
		return nil, statusError(resp.StatusCode, errorBody)
	}

	return resp, nil
}

// GetJSON performs a GET and decodes the JSON response into out. Non-2xx
// responses are returned as a *ClientError.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for _, h := range c.headers {
		req.Header.Set(h.Key, h.Value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
