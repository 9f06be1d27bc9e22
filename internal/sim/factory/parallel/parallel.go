// Package parallel runs independent per-item work in concurrent chunks.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEachChunk splits items into chunks of size and runs fn over each chunk
// concurrently. Chunk i+1 starts only after chunk i has fully returned. The
// first error stops further chunks and is returned.
func ForEachChunk[T any](ctx context.Context, items []T, size int, fn func(context.Context, T) error) error {
	if size < 1 {
		size = 1
	}
	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, it := range items[start:end] {
			it := it
			g.Go(func() error { return fn(gctx, it) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// Chunks reports how many chunks ForEachChunk would dispatch.
func Chunks(n, size int) int {
	if size < 1 {
		size = 1
	}
	return (n + size - 1) / size
}
