package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gunestv/dizicrawl/internal/catalog"
	"github.com/gunestv/dizicrawl/internal/model"
	"github.com/gunestv/dizicrawl/internal/pipeline"
)

// Target describes the catalog a Crawler maintains.
type Target struct {
	// Site names the site in reports.
	Site string

	// Kind selects flat or nested entries.
	Kind model.Kind

	// BaseURL is the site root, recorded in reports.
	BaseURL string

	// ListingURL returns the URL of listing page n, starting at 1.
	ListingURL func(n int) string

	// Policy decides when an existing entry needs no work.
	Policy catalog.Policy
}

// Crawler runs one crawl of one catalog.
type Crawler struct {
	target     Target
	fetcher    Fetcher
	store      *catalog.Store
	extractors Extractors
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time
	onItem     func(job *pipeline.Job)
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithThresholds sets the walk thresholds.
func WithThresholds(t Thresholds) Option {
	return func(c *Crawler) { c.thresholds = t }
}

// WithExtractors replaces the built-in extractors of the target kind.
func WithExtractors(e Extractors) Option {
	return func(c *Crawler) { c.extractors = e }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) { c.logger = logger }
}

// WithClock sets the clock used for crawl timestamps and reports.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

// WithItemHook registers a function called after every processed item.
func WithItemHook(fn func(job *pipeline.Job)) Option {
	return func(c *Crawler) { c.onItem = fn }
}

// New creates a crawler for target.
func New(target Target, f Fetcher, store *catalog.Store, opts ...Option) *Crawler {
	c := &Crawler{
		target:     target,
		fetcher:    f,
		store:      store,
		extractors: ExtractorsFor(target.Kind),
		thresholds: Thresholds{EmptyPageThreshold: 2},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.target.Policy.Now == nil {
		c.target.Policy.Now = c.now
	}
	return c
}

// Run loads the catalog, acquires a session and walks the listing. The
// report is always returned. The error is non-nil for fatal stops only:
// challenge failure, persist failure and cancellation.
func (c *Crawler) Run(ctx context.Context) (*model.RunReport, error) {
	report := model.NewRunReport(c.target.Site, c.target.Kind, c.target.BaseURL, c.store.Path(), c.now())
	log := c.logger.With("site", c.target.Site, "kind", c.target.Kind)

	cat, err := c.store.Load(c.target.Policy)
	if err != nil {
		err = fmt.Errorf("%w: %w", model.ErrPersist, err)
		return c.finish(report, nil, model.StopPersistFailure, err), err
	}
	log.Info("catalog loaded", "path", c.store.Path(), "entries", cat.Len())

	if err := c.fetcher.Bootstrap(ctx); err != nil {
		return c.finish(report, cat, fatalReason(err), err), err
	}

	pipe := c.pipeline(cat, log)
	pager := NewPaginator(c.fetcher, c.extractors.List, cat.Status, c.target.ListingURL, c.thresholds, log)

	res, err := pager.Walk(ctx, func(ctx context.Context, item model.SummaryItem, work Work) error {
		return c.process(ctx, pipe, cat, report, item, work, log)
	})
	report.PagesWalked = res.Pages
	report.ItemsSeen = res.ItemsSeen
	report.ItemsSkipped = res.Skipped
	return c.finish(report, cat, res.Reason, err), err
}

func (c *Crawler) pipeline(cat *catalog.Catalog, log *slog.Logger) *pipeline.Pipeline {
	p := pipeline.New(pipeline.WithLogger(log))
	p.AddStep(&DetailStep{fetcher: c.fetcher, detail: c.extractors.Detail})
	if c.target.Kind.HasChildren() && c.extractors.Children != nil {
		p.AddStep(&ChildrenStep{fetcher: c.fetcher, children: c.extractors.Children, logger: log})
	}
	p.AddSteps(
		&MergeStep{catalog: cat, now: c.now},
		&PersistStep{catalog: cat, store: c.store},
	)
	return p
}

// process runs one item through the pipeline. Item failures are recorded
// and swallowed; fatal errors are returned to end the walk.
func (c *Crawler) process(ctx context.Context, pipe *pipeline.Pipeline, cat *catalog.Catalog, report *model.RunReport, item model.SummaryItem, work Work, log *slog.Logger) error {
	job := &pipeline.Job{
		Item:          item,
		Update:        work == WorkUpdate,
		KnownChildren: cat.KnownChildren(item.CanonicalURL),
	}
	log.Info("processing item", "url", item.CanonicalURL, "title", item.Title, "work", work)

	err := pipe.Execute(ctx, job)
	report.ExtractionGaps += len(job.Gaps)
	for _, gap := range job.Gaps {
		log.Debug("extraction gap", "url", item.CanonicalURL, "error", gap)
	}
	if c.onItem != nil {
		c.onItem(job)
	}

	switch {
	case err == nil:
	case isFatal(ctx, err):
		return err
	default:
		log.Warn("item failed", "url", item.CanonicalURL, "error", err)
		report.AddFailure(item.CanonicalURL, item.Title, err)
		return nil
	}

	if job.Stopped {
		return nil
	}
	report.ChildrenAdded += job.Result.ChildrenAdded
	switch {
	case job.Result.Added:
		report.ItemsAdded++
	default:
		report.ItemsUpdated++
	}
	log.Info("item saved", "url", item.CanonicalURL, "children_added", job.Result.ChildrenAdded, "catalog_size", cat.Len())
	return nil
}

func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, model.ErrChallengeFailure) ||
		errors.Is(err, model.ErrPersist) ||
		ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func (c *Crawler) finish(report *model.RunReport, cat *catalog.Catalog, reason model.StopReason, err error) *model.RunReport {
	report.SessionAcquisitions = c.fetcher.Acquisitions()
	if cat != nil {
		report.CatalogSize = cat.Len()
	}
	report.Finish(reason, err, c.now())
	c.logger.Info("run finished",
		"site", c.target.Site,
		"stop", reason,
		"pages", report.PagesWalked,
		"added", report.ItemsAdded,
		"updated", report.ItemsUpdated,
		"failed", report.ItemsFailed,
		"catalog_size", report.CatalogSize,
	)
	return report
}
