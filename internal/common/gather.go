package common

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Failure pairs an input with the error it produced.
type Failure[T any] struct {
	Input T
	Err   error
}

// Gathered is the outcome of a best-effort fan-out. Succeeded and Failed keep input order.
type Gathered[T, R any] struct {
	Succeeded []R
	Failed    []Failure[T]
}

// Gather runs fn for every input concurrently (at most limit at a time, limit <= 0 means
// unbounded) and waits for all of them. Unlike errgroup.Wait it never stops at the first
// failure: every outcome is reported.
func Gather[T, R any](ctx context.Context, inputs []T, limit int, fn func(context.Context, T) (R, error)) Gathered[T, R] {
	results := make([]R, len(inputs))
	errs := make([]error, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			results[i], errs[i] = fn(gctx, in)
			// Returning nil keeps gctx alive for the remaining tasks.
			return nil
		})
	}
	_ = g.Wait()

	var out Gathered[T, R]
	for i := range inputs {
		if errs[i] != nil {
			out.Failed = append(out.Failed, Failure[T]{Input: inputs[i], Err: errs[i]})
			continue
		}
		out.Succeeded = append(out.Succeeded, results[i])
	}
	return out
}
