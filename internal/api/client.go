package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a thin JSON REST client shared by the upstream integrations
type Client struct {
	baseURL string
	http    *resty.Client
}

type Option func(c *Client)

// WithBearerToken sends a static bearer token on every request
func WithBearerToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.http.SetAuthToken(token)
		}
	}
}

// WithTimeout overrides the default request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

// WithRetry retries idempotent reads on 429 and 5xx. Do not use it for calls that create remote state.
func WithRetry(count int) Option {
	return func(c *Client) {
		c.http.
			SetRetryCount(count).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				// Retry on 429 (Too Many Requests) and 5xx server errors
				return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
			})
	}
}

// WithHeader sets a header sent on every request
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.http.SetHeader(key, value)
	}
}

// NewClient creates a new API client rooted at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	client.http = resty.New().
		SetHeader("User-Agent", "deepreport/1.0").
		SetHeader("Accept", "application/json").
		SetTimeout(60 * time.Second)

	for _, o := range opts {
		o(client)
	}

	return client
}

// R starts a request bound to ctx
func (c *Client) R(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) (*resty.Response, error) {
	req := c.R(ctx)

	if params != nil {
		req.SetQueryParams(params)
	}

	return req.Get(c.URL(endpoint))
}

// Post performs a JSON POST request
func (c *Client) Post(ctx context.Context, endpoint string, payload interface{}) (*resty.Response, error) {
	req := c.R(ctx).SetHeader("Content-Type", "application/json")
	if payload != nil {
		req.SetBody(payload)
	}
	return req.Post(c.URL(endpoint))
}

// Put performs a JSON PUT request
func (c *Client) Put(ctx context.Context, endpoint string, payload interface{}) (*resty.Response, error) {
	return c.R(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Put(c.URL(endpoint))
}

// Delete performs a DELETE request
func (c *Client) Delete(ctx context.Context, endpoint string, params map[string]string) (*resty.Response, error) {
	req := c.R(ctx)

	if params != nil {
		req.SetQueryParams(params)
	}

	return req.Delete(c.URL(endpoint))
}

// URL constructs the full URL for an endpoint
func (c *Client) URL(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}

// SetTimeout allows customizing the timeout for specific operations
func (c *Client) SetTimeout(timeout time.Duration) {
	c.http.SetTimeout(timeout)
}
