package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gunestv/dizicrawl/internal/model"
)

// RunFunc performs one complete crawl and returns its report. The report
// may be non-nil together with an error.
type RunFunc func(ctx context.Context) (*model.RunReport, error)

// Target is a named crawl in a batch.
type Target struct {
	Name string
	Run  RunFunc
}

// Result is the outcome of one target.
type Result struct {
	Name   string
	Report *model.RunReport
	Err    error
}

// Batch runs crawls of different sites side by side.
type Batch struct {
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *Batch) {
		b.logger = logger
	}
}

// WithConcurrency sets how many sites are crawled at once. The default is
// one: sites run one after another.
func WithConcurrency(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatch creates a batch runner.
func NewBatch(opts ...BatchOption) *Batch {
	b := &Batch{concurrency: 1}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Run executes every target and returns results in target order. A failed
// target does not stop the others; only cancellation does, and it is
// returned as the error.
func (b *Batch) Run(ctx context.Context, targets []Target) ([]Result, error) {
	b.logger.Info("starting batch", "sites", len(targets), "concurrency", b.concurrency)
	started := time.Now()

	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{Name: target.Name, Err: err}
				return err
			}

			report, err := target.Run(gctx)
			results[i] = Result{Name: target.Name, Report: report, Err: err}
			if err != nil {
				b.logger.Warn("site crawl failed", "site", target.Name, "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	b.logger.Info("batch complete", "sites", len(targets), "elapsed", time.Since(started).Round(time.Second))
	if err == nil {
		err = ctx.Err()
	}
	return results, err
}
