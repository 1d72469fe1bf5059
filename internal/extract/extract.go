package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/gunestv/dizicrawl/internal/canon"
	"github.com/gunestv/dizicrawl/internal/model"
)

// Detail is what a detail page yields besides its children.
type Detail struct {
	// Title is the page heading; empty when the listing title should be kept.
	Title string

	// Fields holds the extracted values keyed by the model.Field* names.
	Fields model.Fields

	// SeasonURLs lists the season pages of a series in page order.
	// Empty means the detail page itself lists the episodes.
	SeasonURLs []string
}

// playerSelectors locate the embedded player, most specific first.
var playerSelectors = []string{
	"div.video-player-area iframe[src]",
	`div[class*="player"] iframe[src]`,
	`div[class*="video"] iframe[src]`,
}

// playerHints are src fragments of known player iframes.
var playerHints = []string{"embed", "player", ".cfd", "get_video"}

var cssURL = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

func parse(doc *model.Document) (*goquery.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", model.ErrExtractionGap)
	}
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", doc.URL, err)
	}
	return d, nil
}

// clean collapses whitespace and normalizes to NFC.
func clean(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

func text(s *goquery.Selection) string {
	return clean(s.Text())
}

// linkTexts returns the texts of the anchors under s, skipping empties.
func linkTexts(s *goquery.Selection) []string {
	var out []string
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		if t := text(a); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// absolute resolves ref against base without canonicalizing, so query
// strings that select a video survive.
func absolute(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// videoSource finds the player iframe: one inside a player container,
// else the first iframe whose src looks like a player. Ad and Google
// frames are skipped.
func videoSource(d *goquery.Document, base string) string {
	for _, sel := range playerSelectors {
		if src, ok := d.Find(sel).First().Attr("src"); ok && strings.TrimSpace(src) != "" {
			return absolute(base, src)
		}
	}

	var found string
	d.Find("iframe[src]").EachWithBreak(func(_ int, f *goquery.Selection) bool {
		src := f.AttrOr("src", "")
		id := f.AttrOr("id", "")
		if strings.Contains(id, "psContainer") || strings.Contains(src, "google") {
			return true
		}
		for _, hint := range playerHints {
			if strings.Contains(src, hint) {
				found = absolute(base, src)
				return false
			}
		}
		return true
	})
	return found
}

// sameSiteLink resolves href to a canonical key on the page's host. Empty
// and fragment-only hrefs, and links back to the page itself, are rejected.
func sameSiteLink(pageURL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	key, err := canon.Resolve(pageURL, href)
	if err != nil || !canon.SameHost(pageURL, key) || key == canon.Key(pageURL) {
		return "", false
	}
	return key, true
}

// missing lists the keys in want that fields lacks.
func missing(fields model.Fields, want []string) []string {
	var out []string
	for _, k := range want {
		if !fields.Present(k) {
			out = append(out, k)
		}
	}
	return out
}

func setString(fields model.Fields, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

func setStrings(fields model.Fields, key string, values []string) {
	if len(values) > 0 {
		fields[key] = values
	}
}
