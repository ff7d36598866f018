package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// maxScoreAttempts is the total attempt budget for one scoring call.
	maxScoreAttempts = 3

	// retryBaseDelay is the first backoff delay; each retry doubles it
	// (100ms, 200ms, ...).
	retryBaseDelay = 100 * time.Millisecond
)

// GenerateRequest describes one scoring call against the generation endpoint.
type GenerateRequest struct {
	Model   string
	Prompt  string
	Timeout time.Duration
}

// generatePayload is the wire body for the generate endpoint. Temperature is
// pinned to zero so scoring is deterministic.
type generatePayload struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends a prompt to the backend's generation endpoint and returns
// the raw textual output. Client errors abort immediately; timeouts,
// connection failures and 5xx responses are retried with exponential backoff
// up to the attempt budget. Retry exhaustion yields an *APIError carrying
// the endpoint, model and last cause.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	endpoint := c.baseURL + "/api/generate"
	payload := generatePayload{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: generateOptions{Temperature: 0.0},
	}

	var lastErr error
	for attempt := 0; attempt < maxScoreAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			c.logger.Debug("retrying scoring request",
				"endpoint", endpoint,
				"model", req.Model,
				"attempt", attempt+1,
				"delay", delay,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", &APIError{Endpoint: endpoint, Model: req.Model, Attempts: attempt, Err: ctx.Err()}
			}
		}

		attemptCtx, cancel := callCtx(ctx, req.Timeout)
		status, body, err := c.postJSON(attemptCtx, endpoint, payload)
		cancel()

		switch {
		case err != nil:
			if !transientErr(err) {
				return "", &APIError{Endpoint: endpoint, Model: req.Model, Attempts: attempt + 1, Err: err}
			}
			lastErr = err

		case status == http.StatusOK:
			var out generateResponse
			if err := json.Unmarshal(body, &out); err != nil {
				return "", &ProtocolError{Endpoint: endpoint, Reason: fmt.Sprintf("malformed generate response: %v", err)}
			}
			return out.Response, nil

		case transientStatus(status):
			lastErr = fmt.Errorf("backend status %d: %s", status, strings.TrimSpace(string(body)))

		default:
			// 4xx: the request itself is bad, retrying cannot help.
			return "", &APIError{
				Endpoint:   endpoint,
				Model:      req.Model,
				StatusCode: status,
				Attempts:   attempt + 1,
				Err:        fmt.Errorf("backend rejected request: %s", strings.TrimSpace(string(body))),
			}
		}
	}

	return "", &APIError{Endpoint: endpoint, Model: req.Model, Attempts: maxScoreAttempts, Err: lastErr}
}
