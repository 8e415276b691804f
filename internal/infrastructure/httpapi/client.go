package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/resilience"
)

// Client is a small JSON-over-HTTP client shared by the provider adapters.
// Every call runs through the resilience executor when one is configured.
type Client struct {
	provider   string
	baseURL    string
	headers    http.Header
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.headers.Set(key, value)
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func New(provider, baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		provider:   provider,
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    make(http.Header),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// PostJSON sends payload and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	return c.DoJSON(ctx, http.MethodPost, path, payload, out, operation)
}

func (c *Client) GetJSON(ctx context.Context, path string, out any, operation string) error {
	return c.DoJSON(ctx, http.MethodGet, path, nil, out, operation)
}

func (c *Client) DoJSON(ctx context.Context, method, path string, payload any, out any, operation string) error {
	return c.execute(ctx, operation, func(ctx context.Context) error {
		resp, err := c.send(ctx, method, path, payload, operation)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	})
}

// Open sends payload and returns the response with its body unread. The
// caller owns the body. Only the connect phase runs through the executor.
func (c *Client) Open(ctx context.Context, method, path string, payload any, operation string) (*http.Response, error) {
	var resp *http.Response
	err := c.execute(ctx, operation, func(ctx context.Context) error {
		r, err := c.send(ctx, method, path, payload, operation)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.executor == nil {
		err = fn(ctx)
	} else {
		err = c.executor.Execute(ctx, c.provider+"."+operation, fn, Classify)
	}
	return WrapTemporaryIfNeeded(c.provider+" "+operation, err)
}

func (c *Client) send(ctx context.Context, method, path string, payload any, operation string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s request: %w", c.provider, operation, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError(c.provider, operation, resp)
	}
	return resp, nil
}

func statusError(provider, operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
