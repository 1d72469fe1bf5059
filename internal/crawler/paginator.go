package crawler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gunestv/dizicrawl/internal/canon"
	"github.com/gunestv/dizicrawl/internal/catalog"
	"github.com/gunestv/dizicrawl/internal/model"
)

// Cursor is the position of a walk.
type Cursor struct {
	PageNumber       int
	ConsecutiveKnown int
	ConsecutiveEmpty int
}

// Thresholds bound a walk. Zero or negative KnownThreshold and MaxPages
// disable the check; EmptyPageThreshold below one counts as one.
type Thresholds struct {
	KnownThreshold     int
	EmptyPageThreshold int
	MaxPages           int
}

// Work tells the handler what to do with an item.
type Work int

const (
	// WorkNew means the item is not in the catalog.
	WorkNew Work = iota

	// WorkUpdate means the item is in the catalog but incomplete.
	WorkUpdate
)

// String implements fmt.Stringer.
func (w Work) String() string {
	if w == WorkUpdate {
		return "update"
	}
	return "new"
}

// ItemHandler processes one item with work. A non-nil error ends the walk
// and must be a challenge failure, a persist failure or cancellation.
type ItemHandler func(ctx context.Context, item model.SummaryItem, work Work) error

// WalkResult summarises a finished walk.
type WalkResult struct {
	Reason    model.StopReason
	Cursor    Cursor
	Pages     int
	ItemsSeen int
	Skipped   int
}

// Paginator walks listing pages in order.
type Paginator struct {
	fetcher    Fetcher
	list       ListExtractor
	status     func(url string) catalog.Status
	pageURL    func(n int) string
	thresholds Thresholds
	logger     *slog.Logger

	handled map[string]bool
}

// NewPaginator creates a paginator. status classifies items against the
// catalog and pageURL builds the URL of listing page n (1-based).
func NewPaginator(f Fetcher, list ListExtractor, status func(string) catalog.Status, pageURL func(int) string, t Thresholds, logger *slog.Logger) *Paginator {
	if t.EmptyPageThreshold < 1 {
		t.EmptyPageThreshold = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{
		fetcher:    f,
		list:       list,
		status:     status,
		pageURL:    pageURL,
		thresholds: t,
		logger:     logger,
		handled:    make(map[string]bool),
	}
}

// Walk runs until a terminal state. The error is non-nil only for fatal
// stops: challenge failure, persist failure and cancellation.
func (p *Paginator) Walk(ctx context.Context, handle ItemHandler) (WalkResult, error) {
	res := WalkResult{Cursor: Cursor{PageNumber: 1}}
	cur := &res.Cursor

	for {
		if err := ctx.Err(); err != nil {
			return p.stop(res, model.StopCancelled), err
		}
		if p.thresholds.MaxPages > 0 && cur.PageNumber > p.thresholds.MaxPages {
			return p.stop(res, model.StopPageCap), nil
		}

		url := p.pageURL(cur.PageNumber)
		p.logger.Info("listing page", "page", cur.PageNumber, "url", url)

		out, err := p.fetcher.Fetch(ctx, url)
		if err != nil {
			return p.stop(res, fatalReason(err)), err
		}
		switch out.Kind {
		case model.OutcomeNotFound:
			return p.stop(res, model.StopEndOfCatalog), nil
		case model.OutcomeBlocked:
			return p.stop(res, model.StopBlocked), nil
		case model.OutcomeTransportError:
			p.logger.Warn("listing page failed", "url", url, "error", out.Cause)
			return p.stop(res, model.StopTransportError), nil
		}
		res.Pages++

		items, err := p.list.ExtractList(out.Document)
		if err != nil {
			p.logger.Warn("listing page unreadable, counting as empty", "url", url, "error", err)
		}

		if len(items) == 0 {
			cur.ConsecutiveEmpty++
			p.logger.Info("empty listing page", "page", cur.PageNumber, "consecutive", cur.ConsecutiveEmpty)
			if cur.ConsecutiveEmpty >= p.thresholds.EmptyPageThreshold {
				return p.stop(res, model.StopEmptyPages), nil
			}
			cur.PageNumber++
			continue
		}
		cur.ConsecutiveEmpty = 0

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return p.stop(res, model.StopCancelled), err
			}

			key := canon.Key(item.CanonicalURL)
			if p.handled[key] {
				continue
			}
			p.handled[key] = true
			item.CanonicalURL = key
			res.ItemsSeen++

			var work Work
			switch p.status(key) {
			case catalog.Complete:
				res.Skipped++
				cur.ConsecutiveKnown++
				p.logger.Debug("known item", "url", key, "consecutive", cur.ConsecutiveKnown)
				if p.thresholds.KnownThreshold > 0 && cur.ConsecutiveKnown >= p.thresholds.KnownThreshold {
					return p.stop(res, model.StopKnownThreshold), nil
				}
				continue
			case catalog.Incomplete:
				work = WorkUpdate
			default:
				work = WorkNew
				cur.ConsecutiveKnown = 0
			}

			if err := handle(ctx, item, work); err != nil {
				return p.stop(res, fatalReason(err)), err
			}
		}
		cur.PageNumber++
	}
}

func (p *Paginator) stop(res WalkResult, reason model.StopReason) WalkResult {
	res.Reason = reason
	p.logger.Info("walk terminated", "reason", reason, "page", res.Cursor.PageNumber, "pages", res.Pages)
	return res
}

// fatalReason maps a fatal error to its stop reason.
func fatalReason(err error) model.StopReason {
	switch {
	case errors.Is(err, model.ErrChallengeFailure):
		return model.StopChallengeFailure
	case errors.Is(err, model.ErrPersist):
		return model.StopPersistFailure
	default:
		return model.StopCancelled
	}
}
