package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gunestv/dizicrawl/internal/catalog"
	"github.com/gunestv/dizicrawl/internal/fetcher"
	"github.com/gunestv/dizicrawl/internal/log"
	"github.com/gunestv/dizicrawl/internal/model"
	"github.com/gunestv/dizicrawl/internal/pipeline"
	"github.com/gunestv/dizicrawl/internal/session"
)

const site = "https://dizi.example.com"

var clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSite serves canned outcomes by URL. Unknown URLs are NotFound.
type fakeSite struct {
	mu      sync.Mutex
	pages   map[string]model.FetchOutcome
	blocked int
	hits    map[string]int
}

func newFakeSite() *fakeSite {
	return &fakeSite{pages: make(map[string]model.FetchOutcome), hits: make(map[string]int)}
}

func (s *fakeSite) Fetch(_ context.Context, url string, _ *model.Session) model.FetchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits[url]++
	if s.blocked > 0 {
		s.blocked--
		return model.Blocked()
	}
	out, ok := s.pages[url]
	if !ok {
		return model.NotFound()
	}
	return out
}

func (s *fakeSite) html(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[site+path] = model.Ok(model.NewDocument(site+path, 200, "text/html", []byte("<html><body>"+body+"</body></html>"), clock))
}

func (s *fakeSite) set(path string, out model.FetchOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[site+path] = out
}

// listing serves a movie listing page with one card per slug.
func (s *fakeSite) listing(n int, slugs ...string) {
	var b strings.Builder
	for _, slug := range slugs {
		fmt.Fprintf(&b, `<div class="post-item"><a href="/film/%s/?ref=list" title="%s"></a></div>`, slug, strings.ToUpper(slug))
	}
	s.html(fmt.Sprintf("/filmler/page/%d/", n), b.String())
}

// movie serves a movie detail page with a player.
func (s *fakeSite) movie(slug string) {
	s.html("/film/"+slug+"/", fmt.Sprintf(`<div class="video-player-area"><iframe src="https://player.example.net/embed/%s"></iframe></div>`, slug))
}

// threePages is the A..E catalog: [A,B,C], [D,E], [].
func threePages() *fakeSite {
	s := newFakeSite()
	s.listing(1, "a", "b", "c")
	s.listing(2, "d", "e")
	s.listing(3)
	for _, slug := range []string{"a", "b", "c", "d", "e"} {
		s.movie(slug)
	}
	return s
}

func movieTarget() Target {
	return Target{
		Site:       "test",
		Kind:       model.KindMovies,
		BaseURL:    site,
		ListingURL: func(n int) string { return fmt.Sprintf("%s/filmler/page/%d/", site, n) },
		Policy:     catalog.Policy{Kind: model.KindMovies, RequiredFields: []string{model.FieldVideoURL}},
	}
}

func staticSolver() session.Solver {
	return session.NewStaticSolver("cf_clearance=abc", "test-agent")
}

type setup struct {
	target     Target
	thresholds Thresholds
	solver     session.Solver
	fetchOpts  []fetcher.Option
	opts       []Option
}

func run(t *testing.T, ctx context.Context, s *fakeSite, path string, cfg setup) (*model.RunReport, error) {
	t.Helper()

	if cfg.target.ListingURL == nil {
		cfg.target = movieTarget()
	}
	if cfg.solver == nil {
		cfg.solver = staticSolver()
	}
	fopts := append([]fetcher.Option{fetcher.WithLogger(log.Discard()), fetcher.WithRetryDelay(0)}, cfg.fetchOpts...)
	f := fetcher.New(s, cfg.solver, fopts...)
	store := catalog.NewStore(path, catalog.WithLogger(log.Discard()))

	opts := append([]Option{
		WithLogger(log.Discard()),
		WithClock(func() time.Time { return clock }),
		WithThresholds(cfg.thresholds),
	}, cfg.opts...)
	return New(cfg.target, f, store, opts...).Run(ctx)
}

func loadURLs(t *testing.T, path string) []string {
	t.Helper()

	cat, err := catalog.NewStore(path, catalog.WithLogger(log.Discard())).Load(catalog.Policy{})
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	var urls []string
	for _, e := range cat.Entries() {
		urls = append(urls, e.URL)
	}
	return urls
}

func film(slugs ...string) []string {
	urls := make([]string, len(slugs))
	for i, s := range slugs {
		urls[i] = site + "/film/" + s + "/"
	}
	return urls
}

func TestRunThreePages(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "movies.json")
	report, err := run(t, context.Background(), threePages(), path, setup{thresholds: Thresholds{EmptyPageThreshold: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff(film("a", "b", "c", "d", "e"), loadURLs(t, path)); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
	if report.StopReason != model.StopEmptyPages {
		t.Errorf("stop = %v, want %v", report.StopReason, model.StopEmptyPages)
	}
	if report.PagesWalked != 3 || report.ItemsAdded != 5 || report.CatalogSize != 5 {
		t.Errorf("pages=%d added=%d size=%d, want 3/5/5", report.PagesWalked, report.ItemsAdded, report.CatalogSize)
	}
	if report.SessionAcquisitions != 1 {
		t.Errorf("acquisitions = %d, want 1", report.SessionAcquisitions)
	}
	if report.ExtractionGaps != 5 {
		t.Errorf("gaps = %d, want 5 (one per partial movie page)", report.ExtractionGaps)
	}
}

func TestRunSkipsLinklessCards(t *testing.T) {
	t.Parallel()

	s := newFakeSite()
	s.html("/filmler/page/1/", `<div class="post-item"><a href="/film/a/" title="A"></a></div>
<div class="post-item"><img src="/img/orphan.jpg"></div>
<div class="post-item"><a href="/filmler/page/1/"><img src="/img/self.jpg"></a></div>`)
	s.listing(2)
	s.movie("a")

	path := filepath.Join(t.TempDir(), "movies.json")
	report, err := run(t, context.Background(), s, path, setup{thresholds: Thresholds{EmptyPageThreshold: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff(film("a"), loadURLs(t, path)); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
	if report.ItemsAdded != 1 {
		t.Errorf("added = %d, want 1", report.ItemsAdded)
	}
	if hits := s.hits[site+"/filmler/page/1/"]; hits != 1 {
		t.Errorf("listing page fetched %d times, want 1", hits)
	}
}

func TestRunIdempotent(t *testing.T) {
	t.Parallel()

	s := threePages()
	path := filepath.Join(t.TempDir(), "movies.json")
	cfg := setup{thresholds: Thresholds{EmptyPageThreshold: 1}}

	if _, err := run(t, context.Background(), s, path, cfg); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	report, err := run(t, context.Background(), s, path, cfg)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if report.ItemsAdded != 0 || report.ItemsUpdated != 0 || report.ItemsSkipped != 5 {
		t.Errorf("added=%d updated=%d skipped=%d, want 0/0/5", report.ItemsAdded, report.ItemsUpdated, report.ItemsSkipped)
	}
	if diff := cmp.Diff(string(before), string(after)); diff != "" {
		t.Errorf("catalog changed on second run (-before +after):\n%s", diff)
	}
}

func TestRunKnownThreshold(t *testing.T) {
	t.Parallel()

	s := threePages()
	path := filepath.Join(t.TempDir(), "movies.json")
	if _, err := run(t, context.Background(), s, path, setup{thresholds: Thresholds{EmptyPageThreshold: 1}}); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	// A new release appears at the top of the first page.
	s.listing(1, "f", "a", "b", "c")
	s.movie("f")

	report, err := run(t, context.Background(), s, path, setup{thresholds: Thresholds{EmptyPageThreshold: 1, KnownThreshold: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.StopReason != model.StopKnownThreshold {
		t.Errorf("stop = %v, want %v", report.StopReason, model.StopKnownThreshold)
	}
	if report.PagesWalked != 1 || report.ItemsAdded != 1 || report.ItemsSkipped != 2 {
		t.Errorf("pages=%d added=%d skipped=%d, want 1/1/2", report.PagesWalked, report.ItemsAdded, report.ItemsSkipped)
	}
	if got := s.hits[site+"/filmler/page/2/"]; got != 1 {
		t.Errorf("page 2 fetched %d times, want 1 (seed run only)", got)
	}
	if diff := cmp.Diff(film("a", "b", "c", "d", "e", "f"), loadURLs(t, path)); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestRunUpdatesIncomplete(t *testing.T) {
	t.Parallel()

	s := threePages()
	s.html("/film/c/", "<p>player not published yet</p>")
	path := filepath.Join(t.TempDir(), "movies.json")
	cfg := setup{thresholds: Thresholds{EmptyPageThreshold: 1}}

	if _, err := run(t, context.Background(), s, path, cfg); err != nil {
		t.Fatalf("first run: %v", err)
	}

	s.movie("c")
	report, err := run(t, context.Background(), s, path, cfg)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.ItemsUpdated != 1 || report.ItemsSkipped != 4 {
		t.Errorf("updated=%d skipped=%d, want 1/4", report.ItemsUpdated, report.ItemsSkipped)
	}

	cat, err := catalog.NewStore(path).Load(movieTarget().Policy)
	if err != nil {
		t.Fatal(err)
	}
	if got := cat.Status(site + "/film/c/"); got != catalog.Complete {
		t.Errorf("status of c = %v, want complete", got)
	}
	if cat.Len() != 5 {
		t.Errorf("catalog size = %d, want 5", cat.Len())
	}
}

func TestRunBlockRecovery(t *testing.T) {
	t.Parallel()

	s := threePages()
	s.blocked = 1
	solves := 0
	solver := session.SolverFunc(func(context.Context) (*model.Session, error) {
		solves++
		return model.NewSession("fresh", map[string]string{"cf_clearance": "new"}, clock), nil
	})
	seed := model.NewSession("seed", map[string]string{"cf_clearance": "old"}, clock)

	path := filepath.Join(t.TempDir(), "movies.json")
	report, err := run(t, context.Background(), s, path, setup{
		thresholds: Thresholds{EmptyPageThreshold: 1},
		solver:     solver,
		fetchOpts:  []fetcher.Option{fetcher.WithSession(seed)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if solves != 1 || report.SessionAcquisitions != 1 {
		t.Errorf("solves=%d acquisitions=%d, want exactly one", solves, report.SessionAcquisitions)
	}
	if report.CatalogSize != 5 {
		t.Errorf("catalog size = %d, want 5", report.CatalogSize)
	}
}

func TestRunBlockedListing(t *testing.T) {
	t.Parallel()

	s := threePages()
	s.blocked = 2
	path := filepath.Join(t.TempDir(), "movies.json")

	report, err := run(t, context.Background(), s, path, setup{})
	if err != nil {
		t.Fatalf("blocked is not fatal, got %v", err)
	}
	if report.StopReason != model.StopBlocked {
		t.Errorf("stop = %v, want %v", report.StopReason, model.StopBlocked)
	}
	if report.SessionAcquisitions != 2 {
		t.Errorf("acquisitions = %d, want 2 (bootstrap and one refresh)", report.SessionAcquisitions)
	}
}

func TestRunChallengeFailure(t *testing.T) {
	t.Parallel()

	solver := session.SolverFunc(func(context.Context) (*model.Session, error) {
		return nil, errors.New("browser crashed")
	})
	path := filepath.Join(t.TempDir(), "movies.json")

	report, err := run(t, context.Background(), threePages(), path, setup{solver: solver})
	if !errors.Is(err, model.ErrChallengeFailure) {
		t.Fatalf("error = %v, want challenge failure", err)
	}
	if report.StopReason != model.StopChallengeFailure || !report.StopReason.Fatal() {
		t.Errorf("stop = %v, want fatal challenge failure", report.StopReason)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("catalog file should not exist, stat error = %v", statErr)
	}
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "movies.json")
	report, err := run(t, ctx, threePages(), path, setup{
		thresholds: Thresholds{EmptyPageThreshold: 1},
		opts:       []Option{WithItemHook(func(*pipeline.Job) { cancel() })},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if report.StopReason != model.StopCancelled {
		t.Errorf("stop = %v, want %v", report.StopReason, model.StopCancelled)
	}
	// The item finished before cancellation is durable.
	if diff := cmp.Diff(film("a"), loadURLs(t, path)); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestRunPageCap(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "movies.json")
	report, err := run(t, context.Background(), threePages(), path, setup{thresholds: Thresholds{EmptyPageThreshold: 1, MaxPages: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.StopReason != model.StopPageCap {
		t.Errorf("stop = %v, want %v", report.StopReason, model.StopPageCap)
	}
	if diff := cmp.Diff(film("a", "b", "c"), loadURLs(t, path)); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestRunEndOfCatalog(t *testing.T) {
	t.Parallel()

	s := threePages()
	s.set("/filmler/page/3/", model.NotFound())
	path := filepath.Join(t.TempDir(), "movies.json")

	report, err := run(t, context.Background(), s, path, setup{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.StopReason != model.StopEndOfCatalog || report.PagesWalked != 2 {
		t.Errorf("stop=%v pages=%d, want end_of_catalog after 2", report.StopReason, report.PagesWalked)
	}
}

func TestRunItemFailures(t *testing.T) {
	t.Parallel()

	s := threePages()
	s.set("/film/b/", model.NotFound())
	s.set("/film/d/", model.TransportError(errors.New("connection reset")))
	path := filepath.Join(t.TempDir(), "movies.json")

	report, err := run(t, context.Background(), s, path, setup{
		thresholds: Thresholds{EmptyPageThreshold: 1},
		fetchOpts:  []fetcher.Option{fetcher.WithTransportAttempts(2)},
	})
	if err != nil {
		t.Fatalf("item failures are not fatal, got %v", err)
	}

	kinds := make(map[string]string)
	for _, f := range report.Failures {
		kinds[f.URL] = f.Kind
	}
	want := map[string]string{
		site + "/film/b/": "not_found",
		site + "/film/d/": "transport_error",
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
	if got := s.hits[site+"/film/d/"]; got != 2 {
		t.Errorf("transport attempts on d = %d, want 2", got)
	}
	if diff := cmp.Diff(film("a", "c", "e"), loadURLs(t, path)); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestRunPersistFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "movies.json")
	items := 0
	hook := func(*pipeline.Job) {
		items++
		if items == 1 {
			// A directory in place of the file makes the next rename fail.
			_ = os.Remove(path)
			_ = os.Mkdir(path, 0o750)
		}
	}

	report, err := run(t, context.Background(), threePages(), path, setup{opts: []Option{WithItemHook(hook)}})
	if !errors.Is(err, model.ErrPersist) {
		t.Fatalf("error = %v, want persist failure", err)
	}
	if report.StopReason != model.StopPersistFailure {
		t.Errorf("stop = %v, want %v", report.StopReason, model.StopPersistFailure)
	}
	if items != 2 {
		t.Errorf("items processed = %d, want 2", items)
	}
}

func TestRunCorruptCatalog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "movies.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := threePages()

	report, err := run(t, context.Background(), s, path, setup{})
	if !errors.Is(err, model.ErrPersist) || !errors.Is(err, catalog.ErrCorrupt) {
		t.Fatalf("error = %v, want corrupt catalog persist failure", err)
	}
	if report.StopReason != model.StopPersistFailure {
		t.Errorf("stop = %v, want %v", report.StopReason, model.StopPersistFailure)
	}
	if len(s.hits) != 0 {
		t.Errorf("site was contacted %d times before the catalog loaded", len(s.hits))
	}
}

func seriesSite() *fakeSite {
	s := newFakeSite()
	s.html("/diziler/page/1/", `<a href="/dizi/kuzey/">Kuzey</a><a href="/dizi/kuzey/1-sezon/">season link</a>`)
	s.html("/diziler/page/2/", "")
	s.html("/dizi/kuzey/", `<h1>Kuzey</h1>
<div class="ozet">Bir kardeş hikâyesi.</div>
<img class="poster" src="/img/kuzey.jpg">
<a href="/dizi/kuzey/1-sezon/">1. Sezon</a>
<a href="/dizi/kuzey/2-sezon/">2. Sezon</a>`)
	s.html("/dizi/kuzey/1-sezon/", `
<a href="/dizi/kuzey/1-sezon-1-bolum/">Bölüm 1</a>
<a href="/dizi/kuzey/1-sezon-2-bolum/">Bölüm 2</a>`)
	s.html("/dizi/kuzey/2-sezon/", `<a href="/dizi/kuzey/2-sezon-1-bolum/">Bölüm 1</a>`)
	s.html("/dizi/kuzey/1-sezon-1-bolum/", `<div class="video-player-area"><iframe src="https://player.example.net/embed/k11"></iframe></div>`)
	s.html("/dizi/kuzey/2-sezon-1-bolum/", `<div class="video-player-area"><iframe src="https://player.example.net/embed/k21"></iframe></div>`)
	// 1-sezon-2-bolum is missing and gets skipped.
	return s
}

func seriesTarget() Target {
	return Target{
		Site:       "test-series",
		Kind:       model.KindSeries,
		BaseURL:    site,
		ListingURL: func(n int) string { return fmt.Sprintf("%s/diziler/page/%d/", site, n) },
		Policy:     catalog.Policy{Kind: model.KindSeries},
	}
}

func TestRunSeries(t *testing.T) {
	t.Parallel()

	s := seriesSite()
	path := filepath.Join(t.TempDir(), "series.json")

	report, err := run(t, context.Background(), s, path, setup{target: seriesTarget(), thresholds: Thresholds{EmptyPageThreshold: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ItemsAdded != 1 || report.ChildrenAdded != 2 {
		t.Errorf("added=%d children=%d, want 1/2", report.ItemsAdded, report.ChildrenAdded)
	}

	cat, err := catalog.NewStore(path).Load(seriesTarget().Policy)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := cat.Get(site + "/dizi/kuzey/")
	if !ok {
		t.Fatal("series entry missing")
	}
	if entry.Title != "Kuzey" {
		t.Errorf("title = %q, want Kuzey", entry.Title)
	}
	want := []model.ChildRecord{
		{URL: site + "/dizi/kuzey/1-sezon-1-bolum/", Title: "Bölüm 1", Number: "S1 E1", VideoSource: "https://player.example.net/embed/k11"},
		{URL: site + "/dizi/kuzey/2-sezon-1-bolum/", Title: "Bölüm 1", Number: "S2 E1", VideoSource: "https://player.example.net/embed/k21"},
	}
	if diff := cmp.Diff(want, entry.Children); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestRunSeriesFetchesOnlyNewEpisodes(t *testing.T) {
	t.Parallel()

	s := seriesSite()
	path := filepath.Join(t.TempDir(), "series.json")
	target := seriesTarget()
	target.Policy.RefreshAfter = time.Hour
	cfg := setup{target: target, thresholds: Thresholds{EmptyPageThreshold: 1}}

	if _, err := run(t, context.Background(), s, path, cfg); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The entry goes stale; the previously missing episode is now up.
	later := clock.Add(2 * time.Hour)
	s.html("/dizi/kuzey/1-sezon-2-bolum/", `<div class="video-player-area"><iframe src="https://player.example.net/embed/k12"></iframe></div>`)
	cfg.opts = []Option{WithClock(func() time.Time { return later })}

	report, err := run(t, context.Background(), s, path, cfg)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.ItemsUpdated != 1 || report.ChildrenAdded != 1 {
		t.Errorf("updated=%d children=%d, want 1/1", report.ItemsUpdated, report.ChildrenAdded)
	}
	if got := s.hits[site+"/dizi/kuzey/1-sezon-1-bolum/"]; got != 1 {
		t.Errorf("known episode fetched %d times, want 1", got)
	}
}
