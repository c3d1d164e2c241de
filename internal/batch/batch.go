// Package batch partitions id lists for backends that cap "in" filters, runs one query
// per chunk and merges the results.
package batch

import (
	"context"
	"fmt"
	"sort"
)

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Dedupe drops repeated and empty ids, keeping first-seen order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// QueryFunc fetches the items matching one chunk of ids.
type QueryFunc[T any] func(ctx context.Context, ids []string) ([]T, error)

// Query runs fn once per chunk of at most size ids and concatenates the results in
// chunk order. It stops at the first error.
func Query[T any](ctx context.Context, ids []string, size int, fn QueryFunc[T]) ([]T, error) {
	var out []T
	for i, chunk := range Chunk(ids, size) {
		items, err := fn(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("batch %d of ids: %w", i, err)
		}
		out = append(out, items...)
	}
	return out, nil
}

// QuerySorted is Query followed by a stable sort with less, so results from separate
// chunks come back in one global order.
func QuerySorted[T any](ctx context.Context, ids []string, size int, fn QueryFunc[T], less func(a, b T) bool) ([]T, error) {
	out, err := Query(ctx, ids, size, fn)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}
