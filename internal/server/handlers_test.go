package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/knoguchi/rerankd/internal/auth"
	"github.com/knoguchi/rerankd/internal/backend"
	"github.com/knoguchi/rerankd/internal/config"
	"github.com/knoguchi/rerankd/internal/rerank"
)

// testEnv wires a full server against a scriptable fake backend.
type testEnv struct {
	router        http.Handler
	generateCalls int32
}

func newTestEnv(t *testing.T, apiKeys []string, scores map[string]string) *testEnv {
	env := &testEnv{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&env.generateCalls, 1)
		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for content, response := range scores {
			if strings.Contains(body.Prompt, content) {
				json.NewEncoder(w).Encode(map[string]string{"response": response})
				return
			}
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"test-model"}]}`))
	})
	fake := httptest.NewServer(mux)
	t.Cleanup(fake.Close)

	cfg := &config.Config{
		BackendURL:       fake.URL,
		BackendAPIType:   "generate",
		DefaultModel:     "test-model",
		RequestTimeout:   5 * time.Second,
		DefaultTopK:      10,
		DefaultThreshold: 0,
		DefaultBatchSize: 5,
		APIKeys:          apiKeys,
		JWTSecret:        "test-secret",
		JWTExpiry:        time.Hour,
	}

	client := backend.New(cfg.BackendURL)
	orchestrator := rerank.New(client)
	jwtManager := auth.NewJWTManager(&auth.JWTConfig{Secret: cfg.JWTSecret, Expiry: cfg.JWTExpiry, Issuer: "rerankd"})
	authenticator := auth.NewAuthenticator(cfg.APIKeys, jwtManager)
	handler := NewRerankHandler(orchestrator, client, authenticator, jwtManager, cfg, nil)

	server := NewHTTPServer(HTTPServerConfig{
		Port:          0,
		Authenticator: authenticator,
		Handler:       handler,
		Client:        client,
	})
	env.router = server.Router()
	return env
}

func (e *testEnv) post(t *testing.T, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeRerankResponse(t *testing.T, rec *httptest.ResponseRecorder) rerankResponseBody {
	t.Helper()
	var resp rerankResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, rec.Body.String())
	}
	return resp
}

func TestHandleRerank_EndToEnd(t *testing.T) {
	env := newTestEnv(t, nil, map[string]string{"alpha": "0.9", "beta": "0.3", "gamma": "0.7"})

	rec := env.post(t, "/v1/rerank", map[string]any{
		"query":     "what is go",
		"documents": []any{"alpha", "beta", "gamma"},
		"top_k":     2,
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeRerankResponse(t, rec)
	if resp.RequestID == "" {
		t.Error("expected a request id")
	}
	if resp.Model != "test-model" {
		t.Errorf("expected the configured default model, got %q", resp.Model)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Content != "alpha" || resp.Results[1].Content != "gamma" {
		t.Errorf("unexpected ordering: %q, %q", resp.Results[0].Content, resp.Results[1].Content)
	}
}

func TestHandleRerank_ObjectDocuments(t *testing.T) {
	env := newTestEnv(t, nil, map[string]string{"alpha": "0.9"})

	rec := env.post(t, "/v1/rerank", map[string]any{
		"query": "q",
		"documents": []any{
			map[string]any{"text": "alpha", "source": "unit-test"},
		},
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeRerankResponse(t, rec)
	if len(resp.Results) != 1 || resp.Results[0].Content != "alpha" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if resp.Results[0].Metadata["source"] != "unit-test" {
		t.Errorf("expected metadata to round-trip, got %v", resp.Results[0].Metadata)
	}
}

func TestHandleRerank_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"empty query", map[string]any{"query": "", "documents": []any{"a"}}},
		{"invalid document", map[string]any{"query": "q", "documents": []any{42}}},
		{"top_k below 1", map[string]any{"query": "q", "documents": []any{"a"}, "top_k": 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.post(t, "/v1/rerank", tc.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	if n := atomic.LoadInt32(&env.generateCalls); n != 0 {
		t.Errorf("invalid requests must not reach the backend, saw %d calls", n)
	}
}

func TestHandleRerank_MalformedJSON(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/rerank", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRerank_BackendFailureStatus(t *testing.T) {
	// No scripted scores: every generate call 500s until the budget is spent.
	env := newTestEnv(t, nil, map[string]string{})

	rec := env.post(t, "/v1/rerank", map[string]any{
		"query":     "q",
		"documents": []any{"alpha"},
	}, nil)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("retry exhaustion should map to 504, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleRerank_ContinueOnError(t *testing.T) {
	env := newTestEnv(t, nil, map[string]string{})

	rec := env.post(t, "/v1/rerank", map[string]any{
		"query":             "q",
		"documents":         []any{"alpha", "beta"},
		"continue_on_error": true,
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("continue_on_error should answer 200, got %d", rec.Code)
	}

	resp := decodeRerankResponse(t, rec)
	if len(resp.Results) != 0 {
		t.Errorf("expected no results, got %d", len(resp.Results))
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("expected one error record per document, got %d", len(resp.Errors))
	}
	for i, e := range resp.Errors {
		if e.Index != i || e.Error == "" {
			t.Errorf("unexpected error record %d: %+v", i, e)
		}
	}
}

func TestHandleRerank_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, []string{"secret-key"}, map[string]string{"alpha": "0.9"})

	body := map[string]any{"query": "q", "documents": []any{"alpha"}}

	rec := env.post(t, "/v1/rerank", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}

	rec = env.post(t, "/v1/rerank", body, map[string]string{"X-API-Key": "secret-key"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid key, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleToken_Flow(t *testing.T) {
	env := newTestEnv(t, []string{"secret-key"}, map[string]string{"alpha": "0.9"})

	rec := env.post(t, "/v1/token", map[string]string{"api_key": "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong key, got %d", rec.Code)
	}

	rec = env.post(t, "/v1/token", map[string]string{"api_key": "secret-key"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var tokenResp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tokenResp); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	if tokenResp.Token == "" {
		t.Fatal("expected a token")
	}
	if _, err := time.Parse(time.RFC3339, tokenResp.ExpiresAt); err != nil {
		t.Errorf("expires_at is not RFC3339: %v", err)
	}

	// The minted token authenticates rerank calls.
	rec = env.post(t, "/v1/rerank",
		map[string]any{"query": "q", "documents": []any{"alpha"}},
		map[string]string{"Authorization": "Bearer " + tokenResp.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with a minted token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleToken_DisabledAuth(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.post(t, "/v1/token", map[string]string{"api_key": "anything"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("token minting with auth disabled should be rejected, got %d", rec.Code)
	}
}

func TestHandleListModels(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Models []backend.Model `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Models) != 1 || resp.Models[0].Name != "test-model" {
		t.Errorf("unexpected models: %+v", resp.Models)
	}
}

func TestHandleDetect(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.post(t, "/v1/detect", map[string]any{}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		APIType string `json:"api_type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.APIType != string(backend.APITypeGenerate) {
		t.Errorf("expected generate detection against a tags-only backend, got %q", resp.APIType)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, []string{"secret-key"}, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200 without credentials, got %d", path, rec.Code)
		}
	}
}
