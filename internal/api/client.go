package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.uber.org/ratelimit"

	"github.com/dinehub/realtime/internal/model"
)

// SessionSource supplies the session whose token authenticates requests.
type SessionSource interface {
	Resolve(ctx context.Context) (model.Session, error)
}

// Client provides access to the chat and admin REST API.
type Client struct {
	baseURL    string
	sessions   SessionSource
	httpClient *http.Client
	logger     *slog.Logger
	limiter    ratelimit.Limiter

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL string, sessions SessionSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  baseURL,
		sessions: sessions,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		limiter:      ratelimit.New(20), // requests per second
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSecond int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = ratelimit.NewUnlimited()
			return
		}
		c.limiter = ratelimit.New(perSecond)
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
		c.httpClient = hc
	}
}
