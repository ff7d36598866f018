package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/knoguchi/rerankd/internal/document"
)

// ClassifyRequest describes one classification call for a single document.
type ClassifyRequest struct {
	Text    string
	Model   string
	Image   string // optional base64 payload
	Timeout time.Duration
}

// Classification is the outcome of classifying one document. A failed call
// is represented by the LOW/zero-confidence default, never by an error.
type Classification struct {
	Complexity     document.Complexity
	Confidence     float64
	ProcessingTime float64 // milliseconds, as reported by the backend
	ModelUsed      string
}

type classifyPayload struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Image string `json:"image,omitempty"`
}

type classifyResponse struct {
	Complexity     string  `json:"complexity"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processing_time"`
	Model          string  `json:"model"`
}

// defaultClassification is the safe fallback: classification is advisory,
// and a failed call must never drop a document from the pipeline.
func defaultClassification() Classification {
	return Classification{Complexity: document.ComplexityLow, Confidence: 0}
}

// Classify sends one document to the classification endpoint. Any failure
// (network, timeout, malformed or out-of-vocabulary response) yields the
// LOW/zero default instead of an error.
func (c *Client) Classify(ctx context.Context, req ClassifyRequest) Classification {
	endpoint := c.baseURL + "/api/classify"
	payload := classifyPayload{
		Text:  req.Text,
		Model: req.Model,
		Image: req.Image,
	}

	reqCtx, cancel := callCtx(ctx, req.Timeout)
	defer cancel()

	status, body, err := c.postJSON(reqCtx, endpoint, payload)
	if err != nil || status != http.StatusOK {
		c.logger.Debug("classification failed, defaulting to LOW",
			"endpoint", endpoint, "status", status, "error", err)
		return defaultClassification()
	}

	var out classifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		c.logger.Debug("malformed classification response, defaulting to LOW",
			"endpoint", endpoint, "error", err)
		return defaultClassification()
	}

	complexity := document.Complexity(out.Complexity)
	if complexity != document.ComplexityLow && complexity != document.ComplexityHigh {
		c.logger.Debug("unknown complexity label, defaulting to LOW",
			"endpoint", endpoint, "label", out.Complexity)
		return defaultClassification()
	}

	return Classification{
		Complexity:     complexity,
		Confidence:     clampConfidence(out.Confidence),
		ProcessingTime: out.ProcessingTime,
		ModelUsed:      out.Model,
	}
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
