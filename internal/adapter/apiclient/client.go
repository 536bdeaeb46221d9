// Package apiclient pushes tasks and topics to a running task-streamer
// server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mattcl/task-streamer/internal/domain"
	"github.com/mattcl/task-streamer/internal/platform/correlation"
	"github.com/mattcl/task-streamer/internal/platform/retry"
)

const apiPrefix = "/api/v1"

// DefaultPolicy retries transient failures a few times before giving up.
var DefaultPolicy = retry.Policy{
	MaxAttempts:      4,
	InitialBackoff:   250 * time.Millisecond,
	MaxBackoff:       2 * time.Second,
	RateLimitBackoff: 2 * time.Second,
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server responded %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient accepts the server root ("http://host:8128") or the API root
// ("http://host:8128/api/v1").
func NewClient(server, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", server)
	}
	if !strings.HasSuffix(u.Path, apiPrefix) {
		u.Path += apiPrefix
	}

	c := &Client{
		baseURL:    u.String(),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		policy:     DefaultPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Request failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}
	return c, nil
}

// PushTasks replaces the server's task list.
func (c *Client) PushTasks(ctx context.Context, tasks []domain.Task) error {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return c.post(ctx, "tasks", tasks)
}

// SetTopic replaces the server's topic.
func (c *Client) SetTopic(ctx context.Context, topic domain.Topic) error {
	return c.post(ctx, "topic", topic)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	id := correlation.NewID()
	endpoint := c.baseURL + "/" + path

	err = retry.DoVoid(ctx, c.policy, classify, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set(correlation.HeaderName, id)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	})
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}

	slog.Debug("Posted update", "endpoint", endpoint, "correlation_id", id)
	return nil
}

func classify(err error) retry.Action {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return retry.After
		case statusErr.StatusCode >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	return retry.Retry
}
