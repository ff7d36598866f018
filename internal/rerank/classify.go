package rerank

import (
	"context"
	"sync"

	"github.com/knoguchi/rerankd/internal/backend"
	"github.com/knoguchi/rerankd/internal/document"
)

// scoreWithClassification runs the vl-classifier path: classify every
// document concurrently, branch on the configured strategy, then rank the
// survivors — natively if the backend also advertises a reranker, otherwise
// with synthetic scores derived from the complexity labels.
//
// Classification failures never drop a document: the client maps them to the
// LOW/zero-confidence default per document. This is a deliberate asymmetry
// with the scoring path, where a failure is fatal — classification is a
// pre-filter enrichment, scoring is the primary relevance signal.
func (o *Orchestrator) scoreWithClassification(ctx context.Context, req Request) ([]document.Scored, error) {
	opts := normalizeClassificationOptions(req.Classification)

	// One unbatched wave: every classification failure degrades to a safe
	// default, so there is nothing to protect with admission control.
	classifications := make([]backend.Classification, len(req.Documents))
	var wg sync.WaitGroup
	for i, doc := range req.Documents {
		wg.Add(1)
		go func(idx int, d document.Document) {
			defer wg.Done()
			classifications[idx] = o.client.Classify(ctx, backend.ClassifyRequest{
				Text:    d.Content,
				Model:   req.Model,
				Image:   d.Image,
				Timeout: req.Timeout,
			})
		}(i, doc)
	}
	wg.Wait()

	attach := opts.Strategy == StrategyMetadata || opts.Strategy == StrategyBoth
	filter := opts.Strategy == StrategyFilter || opts.Strategy == StrategyBoth

	var survivors []document.Document
	classByIndex := make(map[int]backend.Classification, len(req.Documents))
	for i, doc := range req.Documents {
		if filter && opts.FilterComplexity != document.ComplexityBoth &&
			classifications[i].Complexity != opts.FilterComplexity {
			continue
		}
		survivors = append(survivors, doc)
		classByIndex[doc.OriginalIndex] = classifications[i]
	}

	// Filtering everything away is a legitimate empty result.
	if len(survivors) == 0 {
		o.logger.Debug("classification filter removed all documents",
			"filter_complexity", opts.FilterComplexity)
		return []document.Scored{}, nil
	}

	var scored []document.Scored
	caps := o.client.Status(ctx)
	if caps.HasReranker {
		var err error
		scored, err = o.scoreDirect(ctx, req, survivors)
		if err != nil {
			return nil, err
		}
	} else {
		// Not every classification-capable backend ranks; synthesize an
		// ordering from the labels so the call still produces one.
		scored = make([]document.Scored, len(survivors))
		for i, doc := range survivors {
			cls := classByIndex[doc.OriginalIndex]
			base := 0.2
			if cls.Complexity == document.ComplexityHigh {
				base = 0.8
			}
			scored[i] = document.Scored{
				Document:    doc,
				RerankScore: clampScore(base + 0.2*cls.Confidence),
			}
		}
	}

	if attach {
		for i := range scored {
			cls := classByIndex[scored[i].OriginalIndex]
			confidence := cls.Confidence
			scored[i].ComplexityClass = cls.Complexity
			scored[i].ComplexityConfidence = &confidence
		}
	}

	return scored, nil
}

func normalizeClassificationOptions(opts *ClassificationOptions) ClassificationOptions {
	if opts == nil {
		return ClassificationOptions{
			Enabled:          true,
			Strategy:         StrategyMetadata,
			FilterComplexity: document.ComplexityBoth,
		}
	}

	normalized := *opts
	if normalized.Strategy == "" {
		normalized.Strategy = StrategyMetadata
	}
	if normalized.FilterComplexity == "" {
		normalized.FilterComplexity = document.ComplexityBoth
	}
	return normalized
}
