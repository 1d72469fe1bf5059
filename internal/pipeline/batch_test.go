package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gunestv/dizicrawl/internal/log"
	"github.com/gunestv/dizicrawl/internal/model"
)

func reportFor(site string) *model.RunReport {
	return model.NewRunReport(site, model.KindMovies, "https://"+site, "/tmp/"+site+".json", time.Now())
}

func TestNewBatch(t *testing.T) {
	t.Parallel()

	if b := NewBatch(); b.concurrency != 1 || b.logger == nil {
		t.Errorf("unexpected defaults %+v", b)
	}
	if b := NewBatch(WithConcurrency(4), WithBatchLogger(log.Discard())); b.concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", b.concurrency)
	}
	if b := NewBatch(WithConcurrency(0)); b.concurrency != 1 {
		t.Errorf("zero concurrency must keep the default, got %d", b.concurrency)
	}
}

func TestBatchRun(t *testing.T) {
	t.Parallel()

	t.Run("keeps order and isolates failures", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("challenge failure")
		targets := []Target{
			{Name: "a", Run: func(context.Context) (*model.RunReport, error) { return reportFor("a"), nil }},
			{Name: "b", Run: func(context.Context) (*model.RunReport, error) { return reportFor("b"), boom }},
			{Name: "c", Run: func(context.Context) (*model.RunReport, error) { return reportFor("c"), nil }},
		}

		results, err := NewBatch(WithConcurrency(3), WithBatchLogger(log.Discard())).Run(context.Background(), targets)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		for i, name := range []string{"a", "b", "c"} {
			if results[i].Name != name || results[i].Report == nil || results[i].Report.Site != name {
				t.Errorf("result %d = %+v", i, results[i])
			}
		}
		if !errors.Is(results[1].Err, boom) {
			t.Errorf("expected failure recorded for b, got %v", results[1].Err)
		}
	})

	t.Run("limits concurrency", func(t *testing.T) {
		t.Parallel()

		var running, peak atomic.Int64
		run := func(context.Context) (*model.RunReport, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		}
		targets := make([]Target, 6)
		for i := range targets {
			targets[i] = Target{Name: "s", Run: run}
		}

		if _, err := NewBatch(WithConcurrency(2), WithBatchLogger(log.Discard())).Run(context.Background(), targets); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("peak concurrency %d exceeds limit", peak.Load())
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var calls atomic.Int64
		targets := []Target{{Name: "a", Run: func(context.Context) (*model.RunReport, error) {
			calls.Add(1)
			return nil, nil
		}}}

		results, err := NewBatch(WithBatchLogger(log.Discard())).Run(ctx, targets)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls.Load() != 0 || !errors.Is(results[0].Err, context.Canceled) {
			t.Errorf("cancelled target must not run: %+v", results[0])
		}
	})
}
