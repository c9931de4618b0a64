package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HypothesisValidator/internal/domain"
)

func TestDedupe(t *testing.T) {
	t.Parallel()

	entries := dedupe([]UploadItem{
		{URL: " https://Example.org/a/ ", Title: " First "},
		{URL: "https://example.org/a#top", Title: "Second"},
		{URL: ""},
		{URL: "mailto:someone@example.org"},
		{URL: "mailto:someone@example.org"},
		{URL: "https://example.org/b"},
	})

	require.Len(t, entries, 3)
	assert.Equal(t, "https://Example.org/a/", entries[0].Raw)
	assert.Equal(t, "https://example.org/a", entries[0].Key)
	assert.Equal(t, "First", entries[0].Title)
	assert.ErrorIs(t, entries[1].Err, domain.ErrInvalidRequest)
	assert.Equal(t, "mailto:someone@example.org", entries[1].Key)
	assert.Equal(t, "https://example.org/b", entries[2].Key)
}

func TestForEachKeepsOrderAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5}
	out := forEach(context.Background(), 2, 0, items, func(_ context.Context, n int) (int, error) {
		if n == 3 {
			return 0, errors.New("boom")
		}
		time.Sleep(time.Duration(5-n) * time.Millisecond)
		return n * n, nil
	})

	require.Len(t, out, len(items))
	for i, n := range items {
		if n == 3 {
			assert.Error(t, out[i].err)
			continue
		}
		assert.NoError(t, out[i].err)
		assert.Equal(t, n*n, out[i].val)
	}
}

func TestForEachLimit(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	items := make([]int, 12)
	forEach(context.Background(), 3, 0, items, func(context.Context, int) (struct{}, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestForEachPerItemTimeout(t *testing.T) {
	t.Parallel()

	out := forEach(context.Background(), 2, 20*time.Millisecond, []time.Duration{0, time.Second},
		func(ctx context.Context, d time.Duration) (struct{}, error) {
			select {
			case <-time.After(d):
				return struct{}{}, nil
			case <-ctx.Done():
				return struct{}{}, ctx.Err()
			}
		})

	assert.NoError(t, out[0].err)
	assert.ErrorIs(t, out[1].err, context.DeadlineExceeded)
}

func TestForEachCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	out := forEach(ctx, 1, 0, []int{1, 2}, func(context.Context, int) (int, error) {
		calls.Add(1)
		return 0, nil
	})

	assert.Zero(t, calls.Load())
	for _, o := range out {
		assert.ErrorIs(t, o.err, context.Canceled)
	}
}
