package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/knoguchi/rerankd/internal/backend"
	"github.com/knoguchi/rerankd/internal/document"
)

// Orchestrator is the top-level entry point for reranking. It selects a
// strategy from the configured or detected backend protocol, dispatches to
// the matching scoring path, and applies the threshold/sort/topK policy to
// whatever that path produced.
type Orchestrator struct {
	client *backend.Client
	logger *slog.Logger
}

// Option is a functional option for configuring Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for per-call diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an orchestrator bound to one backend client.
func New(client *backend.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Rerank scores, filters and orders the request's documents. The result
// never exceeds TopK items, never contains a sub-threshold item, and is
// never a silent partial: a scoring failure fails the whole call. An empty
// document set short-circuits to an empty result with zero backend calls.
func (o *Orchestrator) Rerank(ctx context.Context, req Request) ([]document.Scored, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if len(req.Documents) == 0 {
		return []document.Scored{}, nil
	}
	applyDefaults(&req)

	apiType := req.APIType
	if apiType == "" || apiType == backend.APITypeAuto {
		apiType = o.client.DetectAPIType(ctx)
		o.logger.Debug("detected backend api type", "api_type", apiType)
	}

	var scored []document.Scored
	var err error

	switch apiType {
	case backend.APITypeGenerate:
		scored, err = o.scoreWithGeneration(ctx, req)
	case backend.APITypeDirect:
		scored, err = o.scoreDirect(ctx, req, req.Documents)
	case backend.APITypeVLClassifier:
		scored, err = o.scoreWithClassification(ctx, req)
	default:
		return nil, &ValidationError{Field: "api_type", Reason: fmt.Sprintf("unknown value %q", apiType)}
	}
	if err != nil {
		return nil, err
	}

	result := applyPolicy(req, scored)
	o.logger.Debug("rerank complete",
		"api_type", apiType,
		"input_docs", len(req.Documents),
		"output_docs", len(result),
	)
	return result, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if req.TopK < 1 {
		return &ValidationError{Field: "top_k", Reason: "must be at least 1"}
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return &ValidationError{Field: "threshold", Reason: "must be in [0,1]"}
	}
	return nil
}

// applyDefaults fills optional knobs and re-anchors positional identity:
// documents are copied so the caller's slice is never mutated, and each copy
// gets its position in this call as OriginalIndex.
func applyDefaults(req *Request) {
	if req.BatchSize < 1 {
		req.BatchSize = DefaultBatchSize
	}
	if req.Timeout <= 0 {
		req.Timeout = backend.DefaultTimeout
	}
	if req.Instruction == "" {
		req.Instruction = DefaultInstruction
	}

	docs := make([]document.Document, len(req.Documents))
	copy(docs, req.Documents)
	for i := range docs {
		docs[i].OriginalIndex = i
	}
	req.Documents = docs
}

// scoreWithGeneration scores each document through the generation endpoint,
// one prompt per document, fanned out in waves of BatchSize.
func (o *Orchestrator) scoreWithGeneration(ctx context.Context, req Request) ([]document.Scored, error) {
	family := ResolveFamily(req.Model)
	o.logger.Debug("scoring with generation", "model", req.Model, "family", family.String())

	score := func(ctx context.Context, doc document.Document) (float64, error) {
		prompt := family.FormatPrompt(req.Query, doc.Content, req.Instruction)
		output, err := o.client.Generate(ctx, backend.GenerateRequest{
			Model:   req.Model,
			Prompt:  prompt,
			Timeout: req.Timeout,
		})
		if err != nil {
			return 0, err
		}
		return family.ParseScore(output), nil
	}

	results, err := scoreInWaves(ctx, req.Documents, req.BatchSize, score)
	if err != nil {
		return nil, err
	}

	scored := make([]document.Scored, len(req.Documents))
	for _, r := range results {
		scored[r.Index] = document.Scored{
			Document:    req.Documents[r.Index],
			RerankScore: r.Score,
		}
	}
	return scored, nil
}

// scoreDirect ranks docs in one native rerank call. The backend's top_k
// handling is advisory: documents it omits simply drop out here, and the
// caller's threshold/topK policy still runs afterwards.
func (o *Orchestrator) scoreDirect(ctx context.Context, req Request, docs []document.Document) ([]document.Scored, error) {
	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}

	ranked, err := o.client.Rerank(ctx, backend.RerankRequest{
		Model:     req.Model,
		Query:     req.Query,
		Documents: contents,
		TopK:      req.TopK,
		Timeout:   req.Timeout,
	})
	if err != nil {
		return nil, err
	}

	scores := make(map[int]float64, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(docs) {
			o.logger.Warn("rerank result index out of range", "index", r.Index, "docs", len(docs))
			continue
		}
		scores[r.Index] = clampScore(r.RelevanceScore)
	}

	// Rebuilt in input order so tie-breaking stays stable on input position.
	scored := make([]document.Scored, 0, len(scores))
	for i, d := range docs {
		s, ok := scores[i]
		if !ok {
			continue
		}
		scored = append(scored, document.Scored{Document: d, RerankScore: s})
	}
	return scored, nil
}

// applyPolicy runs the output pipeline: inclusive threshold filter, stable
// descending sort (ties keep input order), topK truncation, and original
// score stripping unless the caller asked to keep them.
func applyPolicy(req Request, scored []document.Scored) []document.Scored {
	kept := make([]document.Scored, 0, len(scored))
	for _, s := range scored {
		if s.RerankScore >= req.Threshold {
			kept = append(kept, s)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].RerankScore > kept[j].RerankScore
	})

	if len(kept) > req.TopK {
		kept = kept[:req.TopK]
	}

	if !req.IncludeOriginalScores {
		for i := range kept {
			kept[i].OriginalScore = nil
		}
	}

	return kept
}
