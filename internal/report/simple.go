package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gunestv/dizicrawl/internal/model"
)

// SimpleWriter outputs plain text reports for the terminal. Plain ASCII
// framing keeps the output readable when piped to a file.
type SimpleWriter struct {
	baseWriter

	// verbose lists every failed item with its reason.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every failed item.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one run report.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeCounters(&sb, report)
	w.writeFailures(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// WriteSummary outputs one line per run.
func (w *SimpleWriter) WriteSummary(reports []*model.RunReport) (int, error) {
	var sb strings.Builder

	rule(&sb, "=")
	sb.WriteString("                          DIZICRAWL SUMMARY\n")
	rule(&sb, "=")
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  %-16s %-8s %6s %8s %7s %8s  %s\n", "SITE", "KIND", "ADDED", "UPDATED", "FAILED", "CATALOG", "STATUS")
	for _, r := range reports {
		fmt.Fprintf(&sb, "  %-16s %-8s %6d %8d %7d %8d  %s\n",
			r.Site, r.Kind, r.ItemsAdded, r.ItemsUpdated, r.ItemsFailed, r.CatalogSize, status(r))
	}
	sb.WriteString("\n")
	rule(&sb, "=")

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, r *model.RunReport) {
	sb.WriteString("\n")
	rule(sb, "=")
	sb.WriteString("                           DIZICRAWL RUN\n")
	rule(sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Site:          %s (%s)\n", r.Site, r.Kind)
	fmt.Fprintf(sb, "Base URL:      %s\n", r.BaseURL)
	fmt.Fprintf(sb, "Catalog:       %s\n", r.CatalogFile)
	fmt.Fprintf(sb, "Started:       %s\n", r.StartedAt.Format(timeLayout))
	fmt.Fprintf(sb, "Duration:      %s\n", r.Duration().Round(time.Second))
	fmt.Fprintf(sb, "Stop reason:   %s\n", r.Stop)
	fmt.Fprintf(sb, "Status:        %s\n", status(r))
	if r.Error != "" {
		fmt.Fprintf(sb, "Error:         %s\n", r.Error)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCounters(sb *strings.Builder, r *model.RunReport) {
	section(sb, "COUNTERS")

	fmt.Fprintf(sb, "  Pages walked:         %d\n", r.PagesWalked)
	fmt.Fprintf(sb, "  Items seen:           %d\n", r.ItemsSeen)
	fmt.Fprintf(sb, "  Items added:          %d\n", r.ItemsAdded)
	fmt.Fprintf(sb, "  Items updated:        %d\n", r.ItemsUpdated)
	fmt.Fprintf(sb, "  Items skipped:        %d\n", r.ItemsSkipped)
	fmt.Fprintf(sb, "  Items failed:         %d\n", r.ItemsFailed)
	if r.Kind.HasChildren() {
		fmt.Fprintf(sb, "  Episodes added:       %d\n", r.ChildrenAdded)
	}
	fmt.Fprintf(sb, "  Extraction gaps:      %d\n", r.ExtractionGaps)
	fmt.Fprintf(sb, "  Session acquisitions: %d\n", r.SessionAcquisitions)
	fmt.Fprintf(sb, "  Catalog size:         %d\n", r.CatalogSize)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, r *model.RunReport) {
	if len(r.Failures) == 0 {
		return
	}
	section(sb, "FAILED ITEMS")

	if !w.verbose {
		counts := make(map[string]int)
		var kinds []string
		for _, f := range r.Failures {
			if counts[f.Kind] == 0 {
				kinds = append(kinds, f.Kind)
			}
			counts[f.Kind]++
		}
		for _, k := range kinds {
			fmt.Fprintf(sb, "  %-16s %d\n", k+":", counts[k])
		}
		sb.WriteString("  (use --verbose to list them)\n\n")
		return
	}

	for _, f := range r.Failures {
		title := f.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(sb, "  [%s] %s\n", f.Kind, title)
		fmt.Fprintf(sb, "    URL:    %s\n", f.URL)
		fmt.Fprintf(sb, "    Reason: %s\n", f.Reason)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	rule(sb, "=")
}

func rule(sb *strings.Builder, ch string) {
	sb.WriteString(strings.Repeat(ch, 70))
	sb.WriteString("\n")
}

func section(sb *strings.Builder, title string) {
	rule(sb, "-")
	sb.WriteString(title)
	sb.WriteString("\n")
	rule(sb, "-")
	sb.WriteString("\n")
}
