package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/breatheio/realtime/internal/backoff"
)

// Client provides access to the air-quality REST API. Retryable failures are
// re-attempted under the same backoff policy the realtime components use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
	retry   backoff.Policy
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
		retry: backoff.Policy{
			Base:        time.Second,
			Max:         30 * time.Second,
			MaxAttempts: 3,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithRetries sets the retry budget and the base backoff delay.
func WithRetries(max int, base time.Duration) ClientOption {
	return func(c *Client) {
		c.retry.MaxAttempts = max
		c.retry.Base = base
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}
