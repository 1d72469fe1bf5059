package catalog

import (
	"sync"
	"time"

	om "github.com/wk8/go-ordered-map/v2"

	"github.com/gunestv/dizicrawl/internal/canon"
	"github.com/gunestv/dizicrawl/internal/model"
)

// Status classifies a summary item against the catalog.
type Status int

const (
	// Absent means the key is not in the catalog.
	Absent Status = iota

	// Complete means the entry satisfies the completeness policy.
	Complete

	// Incomplete means the entry exists but must be re-fetched.
	Incomplete
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Absent:
		return "absent"
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Policy decides when an existing entry is complete.
type Policy struct {
	// Kind selects whether children are required.
	Kind model.Kind

	// RequiredFields must all be present.
	RequiredFields []string

	// RefreshAfter marks entries older than this as incomplete. Zero
	// disables the age check.
	RefreshAfter time.Duration

	// Now is the clock for the age check; nil means time.Now.
	Now func() time.Time
}

// IsComplete applies the policy to e.
func (p Policy) IsComplete(e *model.CatalogEntry) bool {
	if e == nil {
		return false
	}
	for _, f := range p.RequiredFields {
		if !e.Fields.Present(f) {
			return false
		}
	}
	if p.Kind.HasChildren() && len(e.Children) == 0 {
		return false
	}
	if p.RefreshAfter > 0 {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		// Entries from files without crawled_at have no age and count as stale.
		if e.CrawledAt.IsZero() || now().Sub(e.CrawledAt) > p.RefreshAfter {
			return false
		}
	}
	return true
}

// UpsertResult describes what an Upsert changed.
type UpsertResult struct {
	Added         bool
	ChildrenAdded int
}

// Stats summarises a catalog.
type Stats struct {
	Entries    int
	Complete   int
	Incomplete int
	Children   int
}

// Catalog is an insertion-ordered set of entries with at most one entry
// per canonical URL. It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries *om.OrderedMap[string, *model.CatalogEntry]
	policy  Policy
	merged  int
}

// New creates an empty catalog.
func New(policy Policy) *Catalog {
	return &Catalog{
		entries: om.New[string, *model.CatalogEntry](),
		policy:  policy,
	}
}

// Policy returns the completeness policy.
func (c *Catalog) Policy() Policy {
	return c.policy
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Len()
}

// Status classifies url.
func (c *Catalog) Status(url string) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries.Get(canon.Key(url))
	switch {
	case !ok:
		return Absent
	case c.policy.IsComplete(e):
		return Complete
	default:
		return Incomplete
	}
}

// Get returns a copy of the entry for url.
func (c *Catalog) Get(url string) (*model.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries.Get(canon.Key(url))
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// KnownChildren returns the canonical child URLs recorded for url.
func (c *Catalog) KnownChildren(url string) map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	known := make(map[string]struct{})
	if e, ok := c.entries.Get(canon.Key(url)); ok {
		for _, ch := range e.Children {
			known[canon.Key(ch.URL)] = struct{}{}
		}
	}
	return known
}

// Upsert inserts entry or merges it into the existing one. The entry's
// URL is canonicalized. On merge, non-empty fields override, unseen
// children are appended in order and the newer crawl time wins.
func (c *Catalog) Upsert(entry *model.CatalogEntry) UpsertResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsert(entry)
}

func (c *Catalog) upsert(entry *model.CatalogEntry) UpsertResult {
	in := entry.Clone()
	in.URL = canon.Key(in.URL)

	old, ok := c.entries.Get(in.URL)
	if !ok {
		in.Children = dedupeChildren(nil, in.Children)
		c.entries.Set(in.URL, in)
		return UpsertResult{Added: true, ChildrenAdded: len(in.Children)}
	}

	merged := old.Clone()
	if in.Title != "" {
		merged.Title = in.Title
	}
	merged.Fields = merged.Fields.Merge(in.Fields)
	before := len(merged.Children)
	merged.Children = dedupeChildren(merged.Children, in.Children)
	if in.CrawledAt.After(merged.CrawledAt) {
		merged.CrawledAt = in.CrawledAt
	}
	c.entries.Set(in.URL, merged)
	return UpsertResult{ChildrenAdded: len(merged.Children) - before}
}

// dedupeChildren appends the children of add whose URL is not yet in base.
func dedupeChildren(base, add []model.ChildRecord) []model.ChildRecord {
	seen := make(map[string]bool, len(base)+len(add))
	for _, ch := range base {
		seen[canon.Key(ch.URL)] = true
	}
	out := base
	for _, ch := range add {
		key := canon.Key(ch.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ch)
	}
	if out == nil && add != nil {
		out = []model.ChildRecord{}
	}
	return out
}

// Entries returns copies of all entries in insertion order.
func (c *Catalog) Entries() []*model.CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*model.CatalogEntry, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.Clone())
	}
	return out
}

// MergedOnLoad returns how many duplicate entries were folded together
// when the catalog was loaded.
func (c *Catalog) MergedOnLoad() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.merged
}

// Stats counts entries by completeness.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s Stats
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		s.Entries++
		s.Children += len(pair.Value.Children)
		if c.policy.IsComplete(pair.Value) {
			s.Complete++
		} else {
			s.Incomplete++
		}
	}
	return s
}
