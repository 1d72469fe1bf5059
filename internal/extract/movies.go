package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gunestv/dizicrawl/internal/model"
)

// movieFields are reported in the extraction gap when absent.
var movieFields = []string{
	model.FieldVideoURL,
	model.FieldPoster,
	model.FieldDescription,
	model.FieldIMDB,
	model.FieldGenres,
	model.FieldYear,
}

// Info box labels on a film page.
const (
	labelIMDB   = "IMDB Puanı"
	labelGenre  = "Tür"
	labelCast   = "Oyuncular"
	labelYear   = "Yapım Yılı"
	summaryHead = "Film Özeti"
)

// Movies extracts the flat film catalog.
type Movies struct{}

// NewMovies returns the film extractor.
func NewMovies() *Movies {
	return &Movies{}
}

// ExtractList reads the div.post-item cards of a listing page.
func (m *Movies) ExtractList(doc *model.Document) ([]model.SummaryItem, error) {
	d, err := parse(doc)
	if err != nil {
		return nil, err
	}

	var items []model.SummaryItem
	seen := make(map[string]bool)
	d.Find("div.post-item").Each(func(_ int, card *goquery.Selection) {
		a := card.Find("a[href]").First()
		key, ok := sameSiteLink(doc.URL, a.AttrOr("href", ""))
		if !ok || seen[key] {
			return
		}
		seen[key] = true

		title := clean(a.AttrOr("title", ""))
		if title == "" {
			title = text(a)
		}
		item := model.SummaryItem{CanonicalURL: key, Title: title}
		if img, ok := card.Find("img").First().Attr("src"); ok {
			item.RawFields = map[string]string{model.FieldPoster: absolute(doc.URL, img)}
		}
		items = append(items, item)
	})
	return items, nil
}

// ExtractDetail reads a film page.
func (m *Movies) ExtractDetail(doc *model.Document) (Detail, error) {
	d, err := parse(doc)
	if err != nil {
		return Detail{}, err
	}

	fields := make(model.Fields)
	if src, ok := d.Find("div.poster img").First().Attr("src"); ok {
		setString(fields, model.FieldPoster, absolute(doc.URL, src))
	}
	if style, ok := d.Find("div#head.cover-image").First().Attr("style"); ok {
		if match := cssURL.FindStringSubmatch(style); match != nil {
			setString(fields, model.FieldCoverImage, absolute(doc.URL, match[1]))
		}
	}
	setString(fields, model.FieldVideoURL, videoSource(d, doc.URL))
	setString(fields, model.FieldDescription, movieSummary(d))

	d.Find(`div[class*="rounded-[10px]"][class*="bg-white/[4%]"]`).Each(func(_ int, box *goquery.Selection) {
		label := box.Find("span.text-xs").First()
		if label.Length() == 0 {
			return
		}
		value := label.NextAllFiltered("div").First()
		if value.Length() == 0 {
			value = label.NextAllFiltered("h6").First()
		}
		if value.Length() == 0 {
			return
		}

		switch name := text(label); {
		case strings.Contains(name, labelIMDB):
			setString(fields, model.FieldIMDB, text(value))
		case strings.Contains(name, labelGenre):
			setStrings(fields, model.FieldGenres, linkTexts(value))
		case strings.Contains(name, labelCast):
			setStrings(fields, model.FieldCast, linkTexts(value))
		case strings.Contains(name, labelYear):
			setString(fields, model.FieldYear, text(value))
		}
	})

	return Detail{Fields: fields}, model.NewExtractionGap(doc.URL, missing(fields, movieFields))
}

// movieSummary prefers the paragraph after the summary heading, then
// p.summary-text.
func movieSummary(d *goquery.Document) string {
	var summary string
	afterHeading := false
	d.Find("h6, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "h6" {
			if strings.Contains(s.Text(), summaryHead) {
				afterHeading = true
			}
			return true
		}
		if afterHeading {
			summary = text(s)
			return false
		}
		return true
	})
	if summary != "" {
		return summary
	}
	return text(d.Find("p.summary-text").First())
}
