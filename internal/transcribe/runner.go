package transcribe

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunOrdered calls fn for every index in [0, n) with at most concurrency
// calls in flight. Results are stored by index, so completion order never
// affects the returned order.
func RunOrdered(ctx context.Context, n, concurrency int, fn func(ctx context.Context, i int) Result) []Result {
	results := make([]Result, n)
	if n == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Failed(err.Error())
				return nil
			}
			results[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
