package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// duplicated has a duplicate entry: the query string does not make a
// different catalog key.
const duplicated = `[
  {"url": "https://films.example/film/a/", "title": "Film A", "videoUrl": "https://player.example.net/embed/a"},
  {"url": "https://films.example/film/b/", "title": "Film B"},
  {"url": "https://films.example/film/a/?ref=list", "title": "Film A (again)"}
]`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "movies.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	return path
}

func catalogArgs(t *testing.T, args ...string) []string {
	t.Helper()
	return append([]string{"catalog", "--config", writeConfig(t, "sites: {}\n"), "--data-dir", t.TempDir()}, args...)
}

func TestCatalogList(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, duplicated)
	out, err := runRoot(t, catalogArgs(t, path)...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Film A (again)", "https://films.example/film/b/", "complete", "incomplete"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCatalogStats(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, duplicated)
	out, err := runRoot(t, catalogArgs(t, path, "--stats")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Entries", "Complete", "Incomplete", "Duplicates merged on load"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCatalogVerifyAndCompact(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, duplicated)

	out, err := runRoot(t, catalogArgs(t, path, "--verify")...)
	if err == nil || !strings.Contains(err.Error(), "1 problem") {
		t.Fatalf("expected one problem, got %v", err)
	}
	if !strings.Contains(out, "duplicate of entry 0") {
		t.Errorf("problem table missing:\n%s", out)
	}

	out, err = runRoot(t, catalogArgs(t, path, "--compact")...)
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	if !strings.Contains(out, "2 entries written, 1 duplicate(s) merged") {
		t.Errorf("unexpected compact output: %s", out)
	}

	out, err = runRoot(t, catalogArgs(t, path, "--verify")...)
	if err != nil {
		t.Fatalf("verify after compact failed: %v", err)
	}
	if !strings.Contains(out, "no problems found") {
		t.Errorf("unexpected verify output: %s", out)
	}
}

func TestCatalogBySiteName(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, duplicated)
	cfg := writeConfig(t, "sites:\n  films:\n    baseURL: https://films.example\n    catalogFile: "+path+"\n")

	out, err := runRoot(t, "catalog", "films", "--config", cfg, "--stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("stats do not name the site's catalog %s:\n%s", path, out)
	}
}

func TestCatalogFlagsExclusive(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, duplicated)
	if _, err := runRoot(t, catalogArgs(t, path, "--stats", "--compact")...); err == nil {
		t.Error("expected error for --stats with --compact")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("Kurtlar Vadisi Pusu", 10); got != "Kurtlar..." {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("Ezel", 10); got != "Ezel" {
		t.Errorf("truncate() = %q", got)
	}
}
