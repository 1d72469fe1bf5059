package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gunestv/dizicrawl/internal/model"
)

// URL path markers of the series site.
const (
	seriesSegment = "/dizi/"
	seasonMarker  = "sezon"
	episodeMarker = "bolum"
)

var episodeNumber = regexp.MustCompile(`(\d+)-sezon-(\d+)-bolum`)

// seriesFields are reported in the extraction gap when absent.
var seriesFields = []string{model.FieldDescription, model.FieldPoster}

// Series extracts the nested series catalog.
type Series struct{}

// NewSeries returns the series extractor.
func NewSeries() *Series {
	return &Series{}
}

// ExtractList collects the series links of a listing page. Season and
// episode links are ignored; each series appears once, in page order.
func (s *Series) ExtractList(doc *model.Document) ([]model.SummaryItem, error) {
	d, err := parse(doc)
	if err != nil {
		return nil, err
	}

	var items []model.SummaryItem
	index := make(map[string]int)
	d.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		key, ok := sameSiteLink(doc.URL, a.AttrOr("href", ""))
		if !ok || !isSeriesPath(key) {
			return
		}
		title := clean(a.AttrOr("title", ""))
		if title == "" {
			title = text(a)
		}
		if i, dup := index[key]; dup {
			if items[i].Title == "" {
				items[i].Title = title
			}
			return
		}
		index[key] = len(items)
		items = append(items, model.SummaryItem{CanonicalURL: key, Title: title})
	})
	return items, nil
}

// ExtractDetail reads a series page and its season links.
func (s *Series) ExtractDetail(doc *model.Document) (Detail, error) {
	d, err := parse(doc)
	if err != nil {
		return Detail{}, err
	}

	fields := make(model.Fields)
	setString(fields, model.FieldDescription,
		text(d.Find(`div[class*="ozet"], div[class*="summary"], div[class*="description"]`).First()))
	if src, ok := d.Find(`img[class*="poster"], img[class*="cover"]`).First().Attr("src"); ok {
		setString(fields, model.FieldPoster, absolute(doc.URL, src))
	}

	var seasons []string
	seen := make(map[string]bool)
	d.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		key, ok := sameSiteLink(doc.URL, a.AttrOr("href", ""))
		if !ok || seen[key] {
			return
		}
		if p := pathOf(key); strings.Contains(p, seasonMarker) && !strings.Contains(p, episodeMarker) {
			seen[key] = true
			seasons = append(seasons, key)
		}
	})

	detail := Detail{
		Title:      text(d.Find("h1").First()),
		Fields:     fields,
		SeasonURLs: seasons,
	}
	return detail, model.NewExtractionGap(doc.URL, missing(fields, seriesFields))
}

// ExtractChildren lists the episodes linked from a season page. The video
// source is filled in later by ExtractChild.
func (s *Series) ExtractChildren(doc *model.Document) ([]model.ChildRecord, error) {
	d, err := parse(doc)
	if err != nil {
		return nil, err
	}

	var children []model.ChildRecord
	seen := make(map[string]bool)
	d.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		key, ok := sameSiteLink(doc.URL, a.AttrOr("href", ""))
		if !ok || seen[key] || !isEpisodePath(key) {
			return
		}
		seen[key] = true

		title := clean(a.AttrOr("title", ""))
		if title == "" {
			title = text(a)
		}
		children = append(children, model.ChildRecord{
			URL:    key,
			Title:  title,
			Number: EpisodeNumber(key),
		})
	})
	return children, nil
}

// ExtractChild completes child with the video source of its own page.
func (s *Series) ExtractChild(doc *model.Document, child model.ChildRecord) (model.ChildRecord, error) {
	d, err := parse(doc)
	if err != nil {
		return child, err
	}
	child.VideoSource = videoSource(d, doc.URL)
	if child.VideoSource == "" {
		return child, model.NewExtractionGap(doc.URL, []string{"video_source"})
	}
	return child, nil
}

// EpisodeNumber formats "S{season} E{episode}" from an episode URL, or
// returns "" when the URL does not carry the numbers.
func EpisodeNumber(rawURL string) string {
	m := episodeNumber.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("S%s E%s", m[1], m[2])
}

func isSeriesPath(key string) bool {
	p := pathOf(key)
	i := strings.Index(p, seriesSegment)
	if i < 0 || strings.Contains(p, seasonMarker) || strings.Contains(p, episodeMarker) {
		return false
	}
	return strings.Trim(p[i+len(seriesSegment):], "/") != ""
}

func isEpisodePath(key string) bool {
	p := pathOf(key)
	return strings.Contains(p, seriesSegment) && strings.Contains(p, seasonMarker) && strings.Contains(p, episodeMarker)
}

func pathOf(key string) string {
	u, err := url.Parse(key)
	if err != nil {
		return ""
	}
	return u.Path
}
