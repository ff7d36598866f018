// Package backend implements HTTP clients for the inference backend's
// generate, rerank, classify, status and tags endpoints, plus capability
// detection across them.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the default backend API base URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	// probeTimeout caps each capability-detection probe independently of
	// the caller's configured request timeout, so detection never eats
	// into the latency budget of the real operation.
	probeTimeout = 5 * time.Second
)

// APIType identifies which reranking protocol a backend speaks.
type APIType string

const (
	// APITypeAuto asks the orchestrator to detect the protocol per call.
	APITypeAuto APIType = "auto"

	// APITypeGenerate scores documents one at a time through a text
	// generation endpoint.
	APITypeGenerate APIType = "generate"

	// APITypeDirect ranks a whole document set in one rerank call.
	APITypeDirect APIType = "direct"

	// APITypeVLClassifier classifies documents through a vision-language
	// endpoint before ranking.
	APITypeVLClassifier APIType = "vl-classifier"
)

// Client talks to a single inference backend. It holds no per-call state and
// is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a backend client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the backend base URL the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// postJSON issues one POST with a JSON body and returns the status code and
// raw response body. A non-2xx status is not an error here; callers decide
// how to classify it.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// getJSON issues one GET and decodes the response body into out on a 200.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// callCtx derives a per-request context from the caller's context and an
// optional timeout override.
func callCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
