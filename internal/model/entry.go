package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Reserved keys of the persisted entry object. Everything else is a field.
const (
	keyURL       = "url"
	keyTitle     = "title"
	keyChildren  = "episodes"
	keyCrawledAt = "crawled_at"
)

// CatalogEntry is the persisted form of a DetailRecord, keyed by its
// canonical URL.
//
// On disk an entry is a flat JSON object: url, title, then the fields in
// sorted order, then episodes and crawled_at. Files written by earlier
// crawlers (no crawled_at, fields at top level) load unchanged.
type CatalogEntry struct {
	URL       string
	Title     string
	Fields    Fields
	Children  []ChildRecord
	CrawledAt time.Time
}

// ChildURLs returns the set of child URLs already recorded.
func (e *CatalogEntry) ChildURLs() map[string]struct{} {
	set := make(map[string]struct{}, len(e.Children))
	for _, c := range e.Children {
		set[c.URL] = struct{}{}
	}
	return set
}

// Clone returns a deep-enough copy for safe mutation by callers.
func (e *CatalogEntry) Clone() *CatalogEntry {
	return &CatalogEntry{
		URL:       e.URL,
		Title:     e.Title,
		Fields:    e.Fields.Clone(),
		Children:  slices.Clone(e.Children),
		CrawledAt: e.CrawledAt,
	}
}

// MarshalJSON writes the flat, key-ordered object. HTML escaping is off so
// that video URLs keep their literal ampersands.
func (e *CatalogEntry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	write := func(key string, value any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := encodeNoEscape(&buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		return encodeNoEscape(&buf, value)
	}

	if err := write(keyURL, e.URL); err != nil {
		return nil, err
	}
	if err := write(keyTitle, e.Title); err != nil {
		return nil, err
	}
	for _, k := range e.Fields.Keys() {
		if isReservedKey(k) {
			continue
		}
		if err := write(k, e.Fields[k]); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
	}
	if e.Children != nil {
		if err := write(keyChildren, e.Children); err != nil {
			return nil, err
		}
	}
	if !e.CrawledAt.IsZero() {
		if err := write(keyCrawledAt, e.CrawledAt.UTC().Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flat object, routing unknown keys into Fields.
func (e *CatalogEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = CatalogEntry{Fields: make(Fields)}
	for k, v := range raw {
		var err error
		switch k {
		case keyURL:
			err = json.Unmarshal(v, &e.URL)
		case keyTitle:
			err = json.Unmarshal(v, &e.Title)
		case keyChildren:
			err = json.Unmarshal(v, &e.Children)
		case keyCrawledAt:
			var s string
			if err = json.Unmarshal(v, &s); err == nil && s != "" {
				e.CrawledAt, err = time.Parse(time.RFC3339, s)
			}
		default:
			var value any
			if err = json.Unmarshal(v, &value); err == nil {
				e.Fields[k] = normalizeValue(value)
			}
		}
		if err != nil {
			return fmt.Errorf("catalog entry key %q: %w", k, err)
		}
	}
	return nil
}

func isReservedKey(k string) bool {
	switch k {
	case keyURL, keyTitle, keyChildren, keyCrawledAt:
		return true
	}
	return false
}

// normalizeValue turns all-string JSON arrays back into []string.
func normalizeValue(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return v
		}
		out = append(out, s)
	}
	return out
}

func encodeNoEscape(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
