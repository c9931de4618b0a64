package usecase

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"HypothesisValidator/internal/domain"
)

// entry is one distinct input URL. Key is the normalized URL, or the trimmed raw
// text when normalization failed (Err is then set).
type entry struct {
	Raw   string
	Key   string
	Title string
	Err   error
}

// dedupe normalizes items and drops repeats, keeping the first occurrence. Blank URLs are ignored.
func dedupe(items []UploadItem) []entry {
	seen := make(map[string]struct{}, len(items))
	out := make([]entry, 0, len(items))
	for _, item := range items {
		raw := strings.TrimSpace(item.URL)
		if raw == "" {
			continue
		}
		e := entry{Raw: raw, Title: strings.TrimSpace(item.Title)}
		if key, err := domain.NormalizeURL(raw); err != nil {
			e.Key, e.Err = raw, err
		} else {
			e.Key = key
		}
		if _, dup := seen[e.Key]; dup {
			continue
		}
		seen[e.Key] = struct{}{}
		out = append(out, e)
	}
	return out
}

type outcome[T any] struct {
	val T
	err error
}

// forEach runs fn over items with at most limit in flight and a per-item timeout.
// Outcomes land in index slots, so results keep input order. A failing item never
// cancels its siblings; items not started before ctx ends record ctx.Err().
func forEach[I, T any](ctx context.Context, limit int, timeout time.Duration, items []I, fn func(context.Context, I) (T, error)) []outcome[T] {
	out := make([]outcome[T], len(items))
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].err = err
				return nil
			}
			itemCtx, cancel := withOptionalTimeout(ctx, timeout)
			defer cancel()
			val, err := fn(itemCtx, item)
			out[i] = outcome[T]{val: val, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
