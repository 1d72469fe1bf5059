package crawler

import (
	"context"

	"github.com/gunestv/dizicrawl/internal/extract"
	"github.com/gunestv/dizicrawl/internal/model"
)

// Fetcher is the page fetch protocol. *fetcher.PageFetcher implements it.
type Fetcher interface {
	Bootstrap(ctx context.Context) error
	Fetch(ctx context.Context, url string) (model.FetchOutcome, error)
	Acquisitions() int
}

// ListExtractor reads the summary items of a listing page.
type ListExtractor interface {
	ExtractList(doc *model.Document) ([]model.SummaryItem, error)
}

// DetailExtractor reads an item's own page. A *model.ExtractionGap error
// accompanies partial data.
type DetailExtractor interface {
	ExtractDetail(doc *model.Document) (extract.Detail, error)
}

// ChildExtractor reads the children of kinds that have them.
type ChildExtractor interface {
	// ExtractChildren lists the children linked from a child listing page.
	ExtractChildren(doc *model.Document) ([]model.ChildRecord, error)

	// ExtractChild completes a child from its own page.
	ExtractChild(doc *model.Document, child model.ChildRecord) (model.ChildRecord, error)
}

// Extractors bundles the extractors of one catalog kind. Children is nil
// for flat kinds.
type Extractors struct {
	List     ListExtractor
	Detail   DetailExtractor
	Children ChildExtractor
}

// ExtractorsFor returns the built-in extractors for kind.
func ExtractorsFor(kind model.Kind) Extractors {
	if kind.HasChildren() {
		s := extract.NewSeries()
		return Extractors{List: s, Detail: s, Children: s}
	}
	m := extract.NewMovies()
	return Extractors{List: m, Detail: m}
}
