package catalog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gunestv/dizicrawl/internal/log"
	"github.com/gunestv/dizicrawl/internal/model"
)

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func moviePolicy() Policy {
	return Policy{Kind: model.KindMovies, RequiredFields: []string{model.FieldVideoURL}}
}

func seriesPolicy() Policy {
	return Policy{
		Kind:           model.KindSeries,
		RequiredFields: []string{model.FieldPoster},
		RefreshAfter:   24 * time.Hour,
		Now:            func() time.Time { return now },
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	cat := New(moviePolicy())
	cat.Upsert(&model.CatalogEntry{URL: "https://x.test/film/a", Fields: model.Fields{model.FieldVideoURL: "v"}})
	cat.Upsert(&model.CatalogEntry{URL: "https://x.test/film/b/", Fields: model.Fields{}})

	tests := []struct {
		url  string
		want Status
	}{
		{"https://x.test/film/a/", Complete},
		{"https://X.test/film/a?ref=home", Complete},
		{"https://x.test/film/b/", Incomplete},
		{"https://x.test/film/c/", Absent},
	}
	for _, tt := range tests {
		if got := cat.Status(tt.url); got != tt.want {
			t.Errorf("Status(%s) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestPolicyIsComplete(t *testing.T) {
	t.Parallel()

	full := &model.CatalogEntry{
		URL:       "https://x.test/dizi/a/",
		Fields:    model.Fields{model.FieldPoster: "p.jpg"},
		Children:  []model.ChildRecord{{URL: "https://x.test/dizi/a/1-sezon-1-bolum/"}},
		CrawledAt: now.Add(-time.Hour),
	}
	tests := []struct {
		name  string
		mod   func(e *model.CatalogEntry)
		want  bool
		scope Policy
	}{
		{name: "complete", mod: func(*model.CatalogEntry) {}, want: true, scope: seriesPolicy()},
		{name: "no children", mod: func(e *model.CatalogEntry) { e.Children = nil }, scope: seriesPolicy()},
		{name: "missing field", mod: func(e *model.CatalogEntry) { e.Fields = model.Fields{model.FieldPoster: ""} }, scope: seriesPolicy()},
		{name: "stale", mod: func(e *model.CatalogEntry) { e.CrawledAt = now.Add(-48 * time.Hour) }, scope: seriesPolicy()},
		{name: "never crawled", mod: func(e *model.CatalogEntry) { e.CrawledAt = time.Time{} }, scope: seriesPolicy()},
		{
			name:  "age ignored without refresh",
			mod:   func(e *model.CatalogEntry) { e.CrawledAt = time.Time{} },
			want:  true,
			scope: Policy{Kind: model.KindSeries},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := full.Clone()
			tt.mod(e)
			if got := tt.scope.IsComplete(e); got != tt.want {
				t.Errorf("IsComplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpsertMerge(t *testing.T) {
	t.Parallel()

	cat := New(seriesPolicy())
	first := cat.Upsert(&model.CatalogEntry{
		URL:       "https://x.test/dizi/a/?utm=1",
		Title:     "A",
		Fields:    model.Fields{model.FieldPoster: "p.jpg", model.FieldDescription: "eski"},
		Children:  []model.ChildRecord{{URL: "https://x.test/dizi/a/1-sezon-1-bolum/", Number: "S1 E1"}},
		CrawledAt: now.Add(-72 * time.Hour),
	})
	if !first.Added || first.ChildrenAdded != 1 {
		t.Fatalf("unexpected first result %+v", first)
	}

	second := cat.Upsert(&model.CatalogEntry{
		URL:    "https://x.test/dizi/a/",
		Fields: model.Fields{model.FieldPoster: "", model.FieldDescription: "yeni"},
		Children: []model.ChildRecord{
			{URL: "https://x.test/dizi/a/1-sezon-1-bolum/?x=1", Number: "dup"},
			{URL: "https://x.test/dizi/a/1-sezon-2-bolum/", Number: "S1 E2"},
		},
		CrawledAt: now,
	})
	if second.Added || second.ChildrenAdded != 1 {
		t.Errorf("unexpected second result %+v", second)
	}

	got, ok := cat.Get("https://x.test/dizi/a/")
	if !ok {
		t.Fatal("entry missing")
	}
	want := &model.CatalogEntry{
		URL:   "https://x.test/dizi/a/",
		Title: "A",
		Fields: model.Fields{
			model.FieldPoster:      "p.jpg",
			model.FieldDescription: "yeni",
		},
		Children: []model.ChildRecord{
			{URL: "https://x.test/dizi/a/1-sezon-1-bolum/", Number: "S1 E1"},
			{URL: "https://x.test/dizi/a/1-sezon-2-bolum/", Number: "S1 E2"},
		},
		CrawledAt: now,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged entry mismatch (-want +got):\n%s", diff)
	}
	if cat.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", cat.Len())
	}
	if cat.Status("https://x.test/dizi/a/") != Complete {
		t.Error("refreshed entry should be complete")
	}
	if _, ok := cat.KnownChildren("https://x.test/dizi/a/")["https://x.test/dizi/a/1-sezon-2-bolum/"]; !ok {
		t.Error("KnownChildren misses the appended episode")
	}
}

func TestEntriesKeepOrder(t *testing.T) {
	t.Parallel()

	cat := New(moviePolicy())
	for _, u := range []string{"c", "a", "b", "a"} {
		cat.Upsert(&model.CatalogEntry{URL: "https://x.test/film/" + u + "/"})
	}
	var got []string
	for _, e := range cat.Entries() {
		got = append(got, e.URL)
	}
	want := []string{"https://x.test/film/c/", "https://x.test/film/a/", "https://x.test/film/b/"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	// Mutating a returned entry does not touch the catalog.
	cat.Entries()[0].Title = "changed"
	if e, _ := cat.Get("https://x.test/film/c/"); e.Title != "" {
		t.Error("Entries must return copies")
	}
}

func TestStoreLoad(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		cat, err := NewStore(filepath.Join(t.TempDir(), "none.json"), WithLogger(log.Discard())).Load(moviePolicy())
		if err != nil || cat.Len() != 0 {
			t.Errorf("expected empty catalog, got %v, %v", cat, err)
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "movies.json")
		if err := os.WriteFile(path, []byte(`[{"url": "x"`), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := NewStore(path, WithLogger(log.Discard())).Load(moviePolicy())
		if !errors.Is(err, ErrCorrupt) {
			t.Errorf("expected ErrCorrupt, got %v", err)
		}
	})

	t.Run("legacy file with duplicates", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "diziler.json")
		legacy := `[
  {"url": "https://x.test/dizi/a/", "title": "A", "poster": "p.jpg", "genres": ["Dram"],
   "episodes": [{"url": "https://x.test/dizi/a/1-sezon-1-bolum/", "title": "1", "episode_number": "S1 E1", "video_source": "v1"}]},
  {"url": "https://x.test/dizi/b/", "title": "B"},
  {"title": "no url"},
  {"url": "https://x.test/dizi/a/?ref=dup", "title": "",
   "episodes": [{"url": "https://x.test/dizi/a/1-sezon-2-bolum/", "title": "2", "episode_number": "S1 E2", "video_source": "v2"}]}
]`
		if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
			t.Fatal(err)
		}
		store := NewStore(path, WithLogger(log.Discard()))

		problems, err := store.Verify()
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if len(problems) != 2 {
			t.Errorf("expected 2 problems, got %+v", problems)
		}

		cat, err := store.Load(seriesPolicy())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cat.Len() != 2 || cat.MergedOnLoad() != 1 {
			t.Errorf("expected 2 entries and 1 merge, got %d and %d", cat.Len(), cat.MergedOnLoad())
		}
		a, _ := cat.Get("https://x.test/dizi/a/")
		if a.Title != "A" || len(a.Children) != 2 {
			t.Errorf("unexpected merged entry %+v", a)
		}
		if diff := cmp.Diff([]string{"Dram"}, a.Fields.Strings(model.FieldGenres)); diff != "" {
			t.Errorf("genres mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestStorePersist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "movies.json")
	store := NewStore(path, WithLogger(log.Discard()))

	cat := New(moviePolicy())
	cat.Upsert(&model.CatalogEntry{
		URL:    "https://x.test/film/a/",
		Title:  "Ağır Roman",
		Fields: model.Fields{model.FieldVideoURL: "https://p.cfd/embed?a=1&b=2"},
	})
	if err := store.Persist(cat); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "Ağır Roman") || !strings.Contains(text, "a=1&b=2") {
		t.Errorf("expected unescaped UTF-8 and ampersands, got:\n%s", text)
	}
	if !strings.HasPrefix(text, "[\n  {") {
		t.Errorf("expected two-space indented array, got:\n%s", text)
	}

	reloaded, err := store.Load(moviePolicy())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if diff := cmp.Diff(cat.Entries(), reloaded.Entries()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// A failing write leaves the previous file intact and no temp files.
	bad := New(moviePolicy())
	bad.Upsert(&model.CatalogEntry{URL: "https://x.test/film/z/", Fields: model.Fields{"broken": make(chan int)}})
	if err := store.Persist(bad); err == nil {
		t.Fatal("expected encode failure")
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != text {
		t.Error("previous catalog was modified by a failed persist")
	}
	var parsed []json.RawMessage
	if err := json.Unmarshal(after, &parsed); err != nil {
		t.Errorf("catalog not parseable: %v", err)
	}
	files, _ := os.ReadDir(filepath.Dir(path))
	if len(files) != 1 {
		t.Errorf("expected only the catalog file, got %d files", len(files))
	}
}

func TestPersistEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.json")
	if err := NewStore(path, WithLogger(log.Discard())).Persist(New(moviePolicy())); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("expected empty array, got %q", data)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	cat := New(moviePolicy())
	cat.Upsert(&model.CatalogEntry{URL: "https://x.test/a/", Fields: model.Fields{model.FieldVideoURL: "v"}})
	cat.Upsert(&model.CatalogEntry{URL: "https://x.test/b/"})
	want := Stats{Entries: 2, Complete: 1, Incomplete: 1}
	if diff := cmp.Diff(want, cat.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
}
