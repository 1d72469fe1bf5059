package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/gunestv/dizicrawl/internal/model"
)

// MarkdownWriter outputs reports as GitHub-flavored Markdown with tables,
// an alert for the verdict and a mermaid chart of item outcomes.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs one run report.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Report: " + report.Site)
	md.PlainText("")
	w.writeRun(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs an overview table and then each run.
func (w *MarkdownWriter) WriteSummary(reports []*model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Summary")
	md.PlainText("")

	rows := make([][]string, len(reports))
	for i, r := range reports {
		rows[i] = []string{
			r.Site,
			string(r.Kind),
			strconv.Itoa(r.ItemsAdded),
			strconv.Itoa(r.ItemsUpdated),
			strconv.Itoa(r.ItemsFailed),
			strconv.Itoa(r.CatalogSize),
			status(r),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Site", "Kind", "Added", "Updated", "Failed", "Catalog", "Status"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range reports {
		md.H2(r.Site)
		md.PlainText("")
		w.writeRun(md, r)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeRun(md *markdown.Markdown, r *model.RunReport) {
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Kind", string(r.Kind)},
			{"Base URL", "`" + r.BaseURL + "`"},
			{"Catalog", "`" + r.CatalogFile + "`"},
			{"Started", r.StartedAt.Format(timeLayout)},
			{"Duration", r.Duration().Round(time.Second).String()},
			{"Stop reason", "`" + r.Stop + "`"},
		},
	})
	md.PlainText("")

	w.writeAlert(md, r)

	rows := [][]string{
		{"Pages walked", strconv.Itoa(r.PagesWalked)},
		{"Items seen", strconv.Itoa(r.ItemsSeen)},
		{"Added", strconv.Itoa(r.ItemsAdded)},
		{"Updated", strconv.Itoa(r.ItemsUpdated)},
		{"Skipped", strconv.Itoa(r.ItemsSkipped)},
		{"Failed", strconv.Itoa(r.ItemsFailed)},
	}
	if r.Kind.HasChildren() {
		rows = append(rows, []string{"Episodes added", strconv.Itoa(r.ChildrenAdded)})
	}
	rows = append(rows,
		[]string{"Extraction gaps", strconv.Itoa(r.ExtractionGaps)},
		[]string{"Session acquisitions", strconv.Itoa(r.SessionAcquisitions)},
		[]string{"**Catalog size**", "**" + strconv.Itoa(r.CatalogSize) + "**"},
	)
	md.Table(markdown.TableSet{Header: []string{"Counter", "Value"}, Rows: rows})
	md.PlainText("")

	w.writePieChart(md, r)
	w.writeFailures(md, r)
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, r *model.RunReport) {
	switch {
	case r.StopReason.Fatal():
		md.Cautionf("The run failed: %s. The catalog holds everything saved before the failure.", r.Error)
	case r.StopReason == model.StopCancelled:
		md.Importantf("The run was cancelled after %d page(s).", r.PagesWalked)
	case r.StopReason.Err() != nil:
		md.Warningf("The walk stopped early (%s). Later pages were not visited.", r.Stop)
	case r.ItemsFailed > 0:
		md.Note(fmt.Sprintf("%d item(s) failed and will be retried on the next run.", r.ItemsFailed))
	default:
		md.Tip("Run completed cleanly.")
	}
	md.PlainText("")
}

// writePieChart charts what happened to the items seen.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, r *model.RunReport) {
	if r.ItemsSeen == 0 {
		return
	}
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Item Outcomes"),
		piechart.WithShowData(true),
	)
	slices := []struct {
		label string
		n     int
	}{
		{"Added", r.ItemsAdded},
		{"Updated", r.ItemsUpdated},
		{"Skipped", r.ItemsSkipped},
		{"Failed", r.ItemsFailed},
	}
	for _, s := range slices {
		if s.n > 0 {
			chart.LabelAndIntValue(s.label, uint64(s.n)) //nolint:gosec // counters are non-negative
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, r *model.RunReport) {
	if len(r.Failures) == 0 {
		return
	}
	md.PlainText("### Failed Items")
	md.PlainText("")

	rows := make([][]string, len(r.Failures))
	for i, f := range r.Failures {
		title := f.Title
		if title == "" {
			title = "-"
		}
		rows[i] = []string{truncateString(title, 40), "`" + f.Kind + "`", f.URL}
	}
	md.Table(markdown.TableSet{Header: []string{"Title", "Kind", "URL"}, Rows: rows})
	md.PlainText("")

	for _, f := range r.Failures {
		md.Details(f.URL, f.Reason)
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by dizicrawl*")
}

// truncateString shortens s to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
