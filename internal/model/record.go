package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Kind selects the catalog layout and its extractors.
type Kind string

const (
	// KindMovies is a flat catalog: one detail page per item.
	KindMovies Kind = "movies"

	// KindSeries is a nested catalog: series -> seasons -> episodes.
	KindSeries Kind = "series"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMovies, KindSeries:
		return k, nil
	default:
		return "", fmt.Errorf("unknown catalog kind %q (want %q or %q)", s, KindMovies, KindSeries)
	}
}

// HasChildren reports whether entries of this kind carry child records.
func (k Kind) HasChildren() bool {
	return k == KindSeries
}

// Field names shared by the extractors, the catalog file and the
// completeness predicates. They match the keys of existing catalog files.
const (
	FieldVideoURL    = "videoUrl"
	FieldDescription = "description"
	FieldIMDB        = "imdb"
	FieldGenres      = "genres"
	FieldCast        = "cast"
	FieldYear        = "year"
	FieldPoster      = "poster"
	FieldCoverImage  = "cover_image"
)

// Fields is the opaque field mapping of a detail record. Values are
// strings or string lists as produced by the extractors; values loaded
// from disk may be any JSON type.
type Fields map[string]any

// String returns a field as a string. Non-string scalars are formatted.
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Strings returns a list field. A scalar string becomes a one-element list.
func (f Fields) Strings(key string) []string {
	switch v := f[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Present reports whether a field has a non-empty value.
func (f Fields) Present(key string) bool {
	switch v := f[key].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []string:
		return len(v) > 0
	case []any:
		return len(v) > 0
	default:
		return true
	}
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	return slices.Sorted(maps.Keys(f))
}

// Clone returns a shallow copy. String lists are copied too.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		if list, ok := v.([]string); ok {
			v = slices.Clone(list)
		}
		out[k] = v
	}
	return out
}

// Merge overlays the non-empty fields of other onto a copy of f.
// Empty values in other never erase existing data.
func (f Fields) Merge(other Fields) Fields {
	out := f.Clone()
	if out == nil {
		out = make(Fields, len(other))
	}
	for k, v := range other {
		if other.Present(k) || !out.Present(k) {
			out[k] = v
		}
	}
	return out
}

// SummaryItem is what a listing page says about one item.
type SummaryItem struct {
	// CanonicalURL is the catalog key.
	CanonicalURL string

	// Title is the listing title; may be empty.
	Title string

	// RawFields holds anything else the listing exposed.
	RawFields map[string]string
}

// ChildRecord is a nested sub-item, an episode of a series.
type ChildRecord struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Number      string `json:"episode_number"`
	VideoSource string `json:"video_source"`
}

// DetailRecord is the enriched record fetched from an item's own page.
type DetailRecord struct {
	Summary  SummaryItem
	Fields   Fields
	Children []ChildRecord
}

// Title prefers the detail page title and falls back to the listing title.
func (d *DetailRecord) Title() string {
	if t := d.Fields.String("title"); t != "" {
		return t
	}
	return d.Summary.Title
}

// ToEntry converts the record to its persisted form.
func (d *DetailRecord) ToEntry(crawledAt time.Time) *CatalogEntry {
	fields := d.Fields.Clone()
	delete(fields, "title")
	delete(fields, "url")
	return &CatalogEntry{
		URL:       d.Summary.CanonicalURL,
		Title:     d.Title(),
		Fields:    fields,
		Children:  slices.Clone(d.Children),
		CrawledAt: crawledAt,
	}
}
