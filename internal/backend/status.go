package backend

import (
	"context"
)

// Capabilities reports what the backend can do right now. It is fetched
// fresh per orchestration call: server state (loaded models, classifier
// availability) can change between calls, so nothing here is cached.
type Capabilities struct {
	Status        string   `json:"status"`
	HasClassifier bool     `json:"has_classifier"`
	HasReranker   bool     `json:"has_reranker"`
	ModelsLoaded  []string `json:"models,omitempty"`
	VRAMUsage     float64  `json:"vram_usage,omitempty"`
	Version       string   `json:"version,omitempty"`
}

// Model is one entry of the backend's model listing.
type Model struct {
	Name string `json:"name"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

// Status fetches the backend's status report. Any failure, including a 404
// from backends that do not implement the endpoint, maps to an error-status
// report with no capabilities rather than an error.
func (c *Client) Status(ctx context.Context) Capabilities {
	var caps Capabilities
	if err := c.getJSON(ctx, c.baseURL+"/status", &caps); err != nil {
		c.logger.Debug("status probe failed", "error", err)
		return Capabilities{Status: "error"}
	}
	if caps.Status == "" {
		caps.Status = "error"
	}
	return caps
}

// ListModels fetches the backend's model listing. It doubles as a
// capability probe for the generate protocol and feeds model-selection UIs.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var out tagsResponse
	if err := c.getJSON(ctx, c.baseURL+"/api/tags", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// DetectAPIType probes the backend to determine which reranking protocol it
// supports. Probe order, first match wins: a status report advertising a
// classifier, a responsive tags listing, a minimal synthetic rerank call,
// then the generate default. Each probe runs under its own short timeout so
// detection never blocks the real operation's latency budget.
func (c *Client) DetectAPIType(ctx context.Context) APIType {
	statusCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	caps := c.Status(statusCtx)
	cancel()
	if caps.Status != "error" && caps.HasClassifier {
		return APITypeVLClassifier
	}

	tagsCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	_, err := c.ListModels(tagsCtx)
	cancel()
	if err == nil {
		return APITypeGenerate
	}

	rerankCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	_, err = c.Rerank(rerankCtx, RerankRequest{
		Query:     "ping",
		Documents: []string{"ping"},
		TopK:      1,
	})
	cancel()
	if err == nil {
		return APITypeDirect
	}

	return APITypeGenerate
}
