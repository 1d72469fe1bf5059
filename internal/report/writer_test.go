package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gunestv/dizicrawl/internal/model"
)

var started = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestReport creates a finished report with sample data.
func createTestReport() *model.RunReport {
	r := model.NewRunReport("dizi", model.KindSeries, "https://dizi.example.com", "/data/series.json", started)
	r.PagesWalked = 4
	r.ItemsSeen = 12
	r.ItemsAdded = 3
	r.ItemsUpdated = 2
	r.ItemsSkipped = 6
	r.ChildrenAdded = 41
	r.ExtractionGaps = 2
	r.SessionAcquisitions = 2
	r.CatalogSize = 120
	r.AddFailure("https://dizi.example.com/dizi/kayip/", "Kayıp & Bulunan", model.ErrNotFound)
	r.Finish(model.StopKnownThreshold, nil, started.Add(3*time.Minute))
	return r
}

func fatalReport() *model.RunReport {
	r := model.NewRunReport("film", model.KindMovies, "https://film.example.com", "/data/movies.json", started)
	r.Finish(model.StopChallengeFailure, model.ErrChallengeFailure, started.Add(time.Minute))
	return r
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "simple", want: FormatSimple},
		{in: "JSON", want: FormatJSON},
		{in: "markdown", want: FormatMarkdown},
		{in: "md", want: FormatMarkdown},
		{in: "", want: FormatSimple},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownFormat) {
					t.Errorf("error = %v, want ErrUnknownFormat", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	for _, f := range []Format{FormatSimple, FormatJSON, FormatMarkdown} {
		if _, err := New(f, &buf); err != nil {
			t.Errorf("New(%q): %v", f, err)
		}
	}
	if _, err := New("xml", &buf); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("New(xml) error = %v", err)
	}
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and counters", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{
			"DIZICRAWL RUN",
			"Site:          dizi (series)",
			"Stop reason:   known_threshold",
			"Duration:      3m0s",
			"Episodes added:       41",
			"Catalog size:         120",
			"Complete with 1 failed item(s)",
			"not_found:       1",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q:\n%s", want, output)
			}
		}
		if strings.Contains(output, "Kayıp") {
			t.Error("failed items should only be listed in verbose mode")
		}
	})

	t.Run("verbose lists failures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestReport()); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "[not_found] Kayıp & Bulunan") {
			t.Errorf("missing failure line:\n%s", output)
		}
		if !strings.Contains(output, "URL:    https://dizi.example.com/dizi/kayip/") {
			t.Errorf("missing failure URL:\n%s", output)
		}
	})

	t.Run("movies omit episode counter", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(fatalReport()); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if strings.Contains(output, "Episodes added") {
			t.Error("movies report should not show episodes")
		}
		if !strings.Contains(output, "FAILED - challenge_failure") {
			t.Errorf("missing fatal status:\n%s", output)
		}
		if !strings.Contains(output, "Error:         challenge failure") {
			t.Errorf("missing error line:\n%s", output)
		}
	})

	t.Run("summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteSummary([]*model.RunReport{createTestReport(), fatalReport()}); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(buf.String(), "\n")
		var rows int
		for _, l := range lines {
			if strings.HasPrefix(l, "  dizi ") || strings.HasPrefix(l, "  film ") {
				rows++
			}
		}
		if rows != 2 {
			t.Errorf("summary rows = %d, want 2:\n%s", rows, buf.String())
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("single report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatal(err)
		}

		var got map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["site"] != "dizi" || got["stop_reason"] != "known_threshold" {
			t.Errorf("unexpected fields: %v", got)
		}
		if got["duration_seconds"] != float64(180) {
			t.Errorf("duration_seconds = %v, want 180", got["duration_seconds"])
		}
		if got["children_added"] != float64(41) {
			t.Errorf("children_added = %v, want 41", got["children_added"])
		}
		if !strings.Contains(buf.String(), "Kayıp & Bulunan") {
			t.Error("titles should not be escaped")
		}
		if !strings.HasSuffix(buf.String(), "}\n") {
			t.Error("expected trailing newline")
		}
	})

	t.Run("compact summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteSummary([]*model.RunReport{createTestReport(), fatalReport()}); err != nil {
			t.Fatal(err)
		}
		var got []map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 2 || got[1]["error"] != "challenge failure" {
			t.Errorf("unexpected summary: %v", got)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("compact output should be a single line")
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		for _, want := range []string{
			"# Crawl Report: dizi",
			"Episodes added",
			"```mermaid",
			"Item Outcomes",
			"### Failed Items",
			"`not_found`",
			"NOTE",
			"Report generated by dizicrawl",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("fatal run gets a caution and no chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(fatalReport()); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "CAUTION") {
			t.Errorf("missing caution alert:\n%s", output)
		}
		if strings.Contains(output, "mermaid") {
			t.Error("no chart expected without items")
		}
	})

	t.Run("summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteSummary([]*model.RunReport{createTestReport(), fatalReport()}); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		for _, want := range []string{"# Crawl Summary", "## dizi", "## film"} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q", want)
			}
		}
	})
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b))
	n, err := mw.Write(createTestReport())
	if err != nil {
		t.Fatal(err)
	}
	if n != a.Len()+b.Len() {
		t.Errorf("total = %d, want %d", n, a.Len()+b.Len())
	}
	if a.Len() == 0 || b.Len() == 0 {
		t.Error("both writers should receive output")
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		max  int
		want string
	}{
		{in: "kısa", max: 10, want: "kısa"},
		{in: "Çok uzun bir başlık", max: 8, want: "Çok u..."},
		{in: "abcdef", max: 2, want: "ab"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
