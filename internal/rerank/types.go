// Package rerank implements the reranking engine: model-family-aware prompt
// formatting and response parsing, wave-based concurrent scoring, complexity
// classification, and the orchestrator that ties strategy selection to the
// threshold/topK output policy.
//
// Every rerank call is self-contained: no state persists across calls and
// independent calls are safe to run concurrently against the same backend.
package rerank

import (
	"time"

	"github.com/knoguchi/rerankd/internal/backend"
	"github.com/knoguchi/rerankd/internal/document"
)

const (
	// DefaultBatchSize bounds concurrent in-flight scoring requests when
	// the caller does not choose a batch size.
	DefaultBatchSize = 5

	// DefaultInstruction is used when the caller supplies no task
	// instruction for the scoring prompt.
	DefaultInstruction = "Given a search query, judge the relevance of the document to the query."
)

// Strategy selects what the classification path does with complexity labels.
type Strategy string

const (
	// StrategyMetadata attaches complexity fields to every document and
	// keeps all of them.
	StrategyMetadata Strategy = "metadata"

	// StrategyFilter keeps only documents matching FilterComplexity.
	StrategyFilter Strategy = "filter"

	// StrategyBoth filters and attaches metadata to the survivors.
	StrategyBoth Strategy = "both"
)

// ClassificationOptions configures the vl-classifier path.
type ClassificationOptions struct {
	Enabled  bool
	Strategy Strategy

	// FilterComplexity selects which label survives filtering.
	// ComplexityBoth makes filtering a no-op.
	FilterComplexity document.Complexity
}

// Request describes one rerank call. Threshold and TopK are applied strictly
// after scoring, never before.
type Request struct {
	Query       string
	Documents   []document.Document
	Instruction string
	Model       string

	TopK      int
	Threshold float64
	BatchSize int
	Timeout   time.Duration

	APIType               backend.APIType
	IncludeOriginalScores bool
	Classification        *ClassificationOptions
}

// ScoreResult carries one document's relevance score by input position. It
// is ephemeral: produced per document, consumed once by the ranking step.
type ScoreResult struct {
	Index int
	Score float64
}
