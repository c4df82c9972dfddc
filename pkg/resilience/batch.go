package resilience

import (
	"context"
	"fmt"
	"sync"
)

// Batch processes items in chunks of batchSize: items within a chunk
// run concurrently, chunks run sequentially. The returned slice
// preserves input order regardless of per-item completion timing.
//
// The first failing item aborts processing after its chunk finishes;
// later chunks are never started.
func Batch[T any, R any](ctx context.Context, items []T, processor func(context.Context, T) (R, error), batchSize int) ([]R, error) {
	if batchSize <= 0 {
		batchSize = 1
	}

	results := make([]R, len(items))

	for start := 0; start < len(items); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		errs := make([]error, end-start)

		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				result, err := processor(ctx, items[i])
				if err != nil {
					errs[i-start] = fmt.Errorf("item %d: %w", i, err)
					return
				}
				results[i] = result
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
