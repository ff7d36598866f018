package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RerankRequest describes one direct-rerank call: the backend scores the
// whole document set natively in a single request.
type RerankRequest struct {
	Model     string
	Query     string
	Documents []string

	// TopK is an advisory hint; the caller still applies its own
	// threshold and truncation after the call.
	TopK int

	Timeout time.Duration
}

// RankedDocument is one entry of the backend's ranked result list. Index
// refers to the position in the request's Documents slice.
type RankedDocument struct {
	Index          int     `json:"index"`
	Document       string  `json:"document"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankPayload struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k"`
}

// Rerank calls the backend's native rerank endpoint. There is no retry: a
// failure here means the backend is structurally incompatible or rejecting
// the request, not transiently overloaded. A response without a well-formed
// `results` array is a *ProtocolError.
func (c *Client) Rerank(ctx context.Context, req RerankRequest) ([]RankedDocument, error) {
	endpoint := c.baseURL + "/api/rerank"
	payload := rerankPayload{
		Model:     req.Model,
		Query:     req.Query,
		Documents: req.Documents,
		TopK:      req.TopK,
	}

	reqCtx, cancel := callCtx(ctx, req.Timeout)
	defer cancel()

	status, body, err := c.postJSON(reqCtx, endpoint, payload)
	if err != nil {
		return nil, &APIError{Endpoint: endpoint, Model: req.Model, Attempts: 1, Err: err}
	}
	if status != http.StatusOK {
		return nil, &APIError{
			Endpoint:   endpoint,
			Model:      req.Model,
			StatusCode: status,
			Attempts:   1,
			Err:        fmt.Errorf("backend rejected request: %s", strings.TrimSpace(string(body))),
		}
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, &ProtocolError{Endpoint: endpoint, Reason: fmt.Sprintf("response is not a JSON object: %v", err)}
	}

	rawResults, ok := probe["results"]
	if !ok {
		return nil, &ProtocolError{Endpoint: endpoint, Reason: "response has no results array"}
	}

	var results []RankedDocument
	if err := json.Unmarshal(rawResults, &results); err != nil {
		return nil, &ProtocolError{Endpoint: endpoint, Reason: fmt.Sprintf("results has wrong shape: %v", err)}
	}

	return results, nil
}
