package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gunestv/dizicrawl/internal/canon"
	"github.com/gunestv/dizicrawl/internal/catalog"
	"github.com/gunestv/dizicrawl/internal/model"
	"github.com/gunestv/dizicrawl/internal/pipeline"
)

// Step names as they appear in logs.
const (
	stepDetail   = "detail"
	stepChildren = "children"
	stepMerge    = "merge"
	stepPersist  = "persist"
)

// DetailStep fetches and extracts the item's own page.
type DetailStep struct {
	fetcher Fetcher
	detail  DetailExtractor
}

// Name implements pipeline.Step.
func (s *DetailStep) Name() string { return stepDetail }

// Do implements pipeline.Step. A page that is missing, blocked after a
// refresh or unreachable fails the item with the matching taxonomy error.
func (s *DetailStep) Do(ctx context.Context, job *pipeline.Job) error {
	url := job.Item.CanonicalURL
	out, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if !out.IsOK() {
		return fmt.Errorf("detail page %s: %w", url, out.Err())
	}

	d, err := s.detail.ExtractDetail(out.Document)
	if err != nil && !errors.Is(err, model.ErrExtractionGap) {
		return fmt.Errorf("%w: %w", model.ErrExtractionGap, err)
	}
	job.AddGap(err)

	fields := make(model.Fields, len(job.Item.RawFields)+len(d.Fields)+1)
	for k, v := range job.Item.RawFields {
		fields[k] = v
	}
	fields = fields.Merge(d.Fields)
	if d.Title != "" {
		fields["title"] = d.Title
	}

	job.Document = out.Document
	job.ChildPages = d.SeasonURLs
	job.Record = &model.DetailRecord{Summary: job.Item, Fields: fields}
	return nil
}

// ChildrenStep walks the child listing pages and fetches every child the
// catalog does not hold yet.
type ChildrenStep struct {
	fetcher  Fetcher
	children ChildExtractor
	logger   *slog.Logger
}

// Name implements pipeline.Step.
func (s *ChildrenStep) Name() string { return stepChildren }

// Do implements pipeline.Step. Child pages and children that fail are
// skipped; only fatal errors end the item.
func (s *ChildrenStep) Do(ctx context.Context, job *pipeline.Job) error {
	pages := job.ChildPages
	if len(pages) == 0 {
		pages = []string{job.Item.CanonicalURL}
	}

	seen := make(map[string]bool, len(job.KnownChildren))
	for u := range job.KnownChildren {
		seen[u] = true
	}

	for _, pageURL := range pages {
		doc, err := s.page(ctx, job, pageURL)
		if err != nil {
			return err
		}
		if doc == nil {
			continue
		}

		listed, err := s.children.ExtractChildren(doc)
		if err != nil {
			job.AddGap(fmt.Errorf("%w: %w", model.ErrExtractionGap, err))
			continue
		}

		for _, child := range listed {
			key := canon.Key(child.URL)
			if seen[key] {
				continue
			}
			seen[key] = true

			out, err := s.fetcher.Fetch(ctx, child.URL)
			if err != nil {
				return err
			}
			if !out.IsOK() {
				s.logger.Warn("child skipped", "url", child.URL, "outcome", out)
				continue
			}
			done, err := s.children.ExtractChild(out.Document, child)
			job.AddGap(err)
			done.URL = key
			job.Record.Children = append(job.Record.Children, done)
			s.logger.Debug("child added", "url", key, "number", done.Number)
		}
	}
	return nil
}

// page returns the document of a child listing page, reusing the detail
// page when it is the same URL. A nil document with nil error means skip.
func (s *ChildrenStep) page(ctx context.Context, job *pipeline.Job, pageURL string) (*model.Document, error) {
	if job.Document != nil && canon.Equal(pageURL, job.Item.CanonicalURL) {
		return job.Document, nil
	}
	out, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if !out.IsOK() {
		s.logger.Warn("child listing page skipped", "url", pageURL, "outcome", out)
		return nil, nil
	}
	return out.Document, nil
}

// MergeStep upserts the record into the catalog.
type MergeStep struct {
	catalog *catalog.Catalog
	now     func() time.Time
}

// Name implements pipeline.Step.
func (s *MergeStep) Name() string { return stepMerge }

// Do implements pipeline.Step. A record with nothing extracted is not
// stored; the job stops with a gap instead.
func (s *MergeStep) Do(_ context.Context, job *pipeline.Job) error {
	rec := job.Record
	if rec == nil || (rec.Title() == "" && len(rec.Fields) == 0 && len(rec.Children) == 0) {
		job.AddGap(model.NewExtractionGap(job.Item.CanonicalURL, []string{"title"}))
		return pipeline.ErrStop
	}
	job.Result = s.catalog.Upsert(rec.ToEntry(s.now()))
	return nil
}

// PersistStep rewrites the catalog file.
type PersistStep struct {
	catalog *catalog.Catalog
	store   *catalog.Store
}

// Name implements pipeline.Step.
func (s *PersistStep) Name() string { return stepPersist }

// Do implements pipeline.Step.
func (s *PersistStep) Do(_ context.Context, _ *pipeline.Job) error {
	if err := s.store.Persist(s.catalog); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersist, err)
	}
	return nil
}
