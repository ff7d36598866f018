package rerank

import (
	"context"
	"sync"

	"github.com/knoguchi/rerankd/internal/document"
)

// scoreFunc scores a single document, returning a relevance score in [0,1].
type scoreFunc func(ctx context.Context, doc document.Document) (float64, error)

// scoreInWaves scores documents concurrently in fixed-size waves: up to
// batchSize requests run in flight, and each wave is fully awaited before
// the next starts. This bounds pressure on the backend while keeping each
// wave maximally parallel. Results are keyed by input index, so output order
// matches input order regardless of completion order. The first failing
// document fails the whole call; there is no partial-batch recovery here.
func scoreInWaves(ctx context.Context, docs []document.Document, batchSize int, score scoreFunc) ([]ScoreResult, error) {
	results := make([]ScoreResult, len(docs))

	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))

		var wg sync.WaitGroup
		errs := make([]error, end-start)

		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				s, err := score(ctx, docs[idx])
				if err != nil {
					errs[idx-start] = err
					return
				}
				results[idx] = ScoreResult{Index: idx, Score: s}
			}(i)
		}

		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}

	return results, nil
}
