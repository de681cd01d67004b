package ai

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// batchConcurrency caps in-flight embedding calls so a large document does
// not stampede the backend.
const batchConcurrency = 8

// EmbedBatch embeds every text concurrently and returns the vectors in
// input order. Completion order of the underlying calls is not
// guaranteed, so each goroutine writes to its own slot. A count mismatch
// between inputs and outputs is an EmbeddingError, never silently padded.
func EmbedBatch(ctx context.Context, c Client, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, t := range texts {
		g.Go(func() error {
			v, err := c.Embed(ctx, t)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if _, ok := err.(*EmbeddingError); ok {
			return nil, err
		}
		return nil, &EmbeddingError{Err: err}
	}

	for i, v := range out {
		if v == nil {
			return nil, &EmbeddingError{Err: fmt.Errorf("missing embedding for input %d", i)}
		}
	}
	return out, nil
}
