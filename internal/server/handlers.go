package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/rerankd/internal/auth"
	"github.com/knoguchi/rerankd/internal/backend"
	"github.com/knoguchi/rerankd/internal/config"
	"github.com/knoguchi/rerankd/internal/document"
	"github.com/knoguchi/rerankd/internal/rerank"
)

// RerankHandler implements the service's API endpoints.
type RerankHandler struct {
	orchestrator  *rerank.Orchestrator
	client        *backend.Client
	authenticator *auth.Authenticator
	jwtManager    *auth.JWTManager
	cfg           *config.Config
	logger        *slog.Logger
}

// NewRerankHandler creates the handler with its collaborators.
func NewRerankHandler(
	orchestrator *rerank.Orchestrator,
	client *backend.Client,
	authenticator *auth.Authenticator,
	jwtManager *auth.JWTManager,
	cfg *config.Config,
	logger *slog.Logger,
) *RerankHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RerankHandler{
		orchestrator:  orchestrator,
		client:        client,
		authenticator: authenticator,
		jwtManager:    jwtManager,
		cfg:           cfg,
		logger:        logger,
	}
}

// rerankRequestBody is the wire form of a rerank call. Documents are
// deliberately untyped: callers send bare strings or objects with any of the
// recognized content fields, and normalization happens once at this boundary.
type rerankRequestBody struct {
	Query                 string              `json:"query"`
	Documents             []any               `json:"documents"`
	Instruction           string              `json:"instruction,omitempty"`
	Model                 string              `json:"model,omitempty"`
	TopK                  *int                `json:"top_k,omitempty"`
	Threshold             *float64            `json:"threshold,omitempty"`
	BatchSize             *int                `json:"batch_size,omitempty"`
	TimeoutMs             *int                `json:"timeout_ms,omitempty"`
	APIType               string              `json:"api_type,omitempty"`
	IncludeOriginalScores bool                `json:"include_original_scores,omitempty"`
	ContinueOnError       bool                `json:"continue_on_error,omitempty"`
	Classification        *classificationBody `json:"classification,omitempty"`
}

type classificationBody struct {
	Enabled          bool   `json:"enabled"`
	Strategy         string `json:"strategy,omitempty"`
	FilterComplexity string `json:"filter_complexity,omitempty"`
}

// itemError is a per-document failure record, used only under
// continue_on_error.
type itemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type rerankResponseBody struct {
	RequestID string            `json:"request_id"`
	Model     string            `json:"model"`
	Results   []document.Scored `json:"results"`
	Errors    []itemError       `json:"errors,omitempty"`
	TookMs    int64             `json:"took_ms"`
}

// HandleRerank serves POST /v1/rerank.
func (h *RerankHandler) HandleRerank(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.New().String()

	var body rerankRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return
	}

	docs, err := document.Normalize(body.Documents)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := h.buildRequest(body, docs)

	results, err := h.orchestrator.Rerank(r.Context(), req)
	if err != nil {
		// The collaborator-level continue-on-error policy: report the
		// failure per document instead of failing the call.
		if body.ContinueOnError {
			itemErrors := make([]itemError, len(docs))
			for i := range docs {
				itemErrors[i] = itemError{Index: i, Error: err.Error()}
			}
			h.logger.Warn("rerank failed, continuing per request policy",
				"request_id", requestID, "error", err)
			writeJSON(w, http.StatusOK, rerankResponseBody{
				RequestID: requestID,
				Model:     req.Model,
				Results:   []document.Scored{},
				Errors:    itemErrors,
				TookMs:    time.Since(start).Milliseconds(),
			})
			return
		}

		h.writeRerankError(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, rerankResponseBody{
		RequestID: requestID,
		Model:     req.Model,
		Results:   results,
		TookMs:    time.Since(start).Milliseconds(),
	})
}

// buildRequest merges the wire request with service-level defaults.
func (h *RerankHandler) buildRequest(body rerankRequestBody, docs []document.Document) rerank.Request {
	req := rerank.Request{
		Query:                 body.Query,
		Documents:             docs,
		Instruction:           body.Instruction,
		Model:                 body.Model,
		TopK:                  h.cfg.DefaultTopK,
		Threshold:             h.cfg.DefaultThreshold,
		BatchSize:             h.cfg.DefaultBatchSize,
		Timeout:               h.cfg.RequestTimeout,
		APIType:               backend.APIType(h.cfg.BackendAPIType),
		IncludeOriginalScores: body.IncludeOriginalScores,
	}

	if body.Model == "" {
		req.Model = h.cfg.DefaultModel
	}
	if body.TopK != nil {
		req.TopK = *body.TopK
	}
	if body.Threshold != nil {
		req.Threshold = *body.Threshold
	}
	if body.BatchSize != nil {
		req.BatchSize = *body.BatchSize
	}
	if body.TimeoutMs != nil {
		req.Timeout = time.Duration(*body.TimeoutMs) * time.Millisecond
	}
	if body.APIType != "" {
		req.APIType = backend.APIType(body.APIType)
	}
	if body.Classification != nil {
		req.Classification = &rerank.ClassificationOptions{
			Enabled:          body.Classification.Enabled,
			Strategy:         rerank.Strategy(body.Classification.Strategy),
			FilterComplexity: document.Complexity(body.Classification.FilterComplexity),
		}
	}

	return req
}

// writeRerankError maps the engine's error taxonomy onto HTTP statuses.
func (h *RerankHandler) writeRerankError(w http.ResponseWriter, requestID string, err error) {
	var validationErr *rerank.ValidationError
	var protocolErr *backend.ProtocolError
	var apiErr *backend.APIError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr), errors.Is(err, document.ErrInvalidDocument):
		status = http.StatusBadRequest
	case errors.As(err, &protocolErr):
		status = http.StatusBadGateway
	case errors.As(err, &apiErr):
		if apiErr.Attempts >= 2 {
			// Transient failures that survived the retry budget
			status = http.StatusGatewayTimeout
		} else {
			status = http.StatusBadGateway
		}
	}

	h.logger.Error("rerank failed", "request_id", requestID, "error", err)
	writeError(w, status, err.Error())
}

// HandleListModels serves GET /v1/models, a passthrough of the backend's
// model listing for selection UIs.
func (h *RerankHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.client.ListModels(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "listing models: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// HandleDetect serves POST /v1/detect, exposing the capability probe.
func (h *RerankHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	apiType := h.client.DetectAPIType(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"api_type": apiType})
}

type tokenRequestBody struct {
	APIKey string `json:"api_key"`
}

// HandleToken serves POST /v1/token: exchanges a valid API key for a JWT.
func (h *RerankHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var body tokenRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return
	}

	if !h.authenticator.Enabled() {
		writeError(w, http.StatusBadRequest, "authentication is disabled")
		return
	}
	if !h.authenticator.ValidateAPIKey(body.APIKey) {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(body.APIKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generating token: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
