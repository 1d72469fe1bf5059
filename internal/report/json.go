package report

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gunestv/dizicrawl/internal/model"
)

// JSONWriter outputs reports as JSON for scripts. Non-ASCII titles are
// written as UTF-8, not escaped.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report.
func (w *JSONWriter) Write(report *model.RunReport) (int, error) {
	return w.writeJSON(jsonRun{RunReport: report, DurationSeconds: report.Duration().Seconds()})
}

// WriteSummary outputs the reports as a JSON array.
func (w *JSONWriter) WriteSummary(reports []*model.RunReport) (int, error) {
	runs := make([]jsonRun, len(reports))
	for i, r := range reports {
		runs[i] = jsonRun{RunReport: r, DurationSeconds: r.Duration().Seconds()}
	}
	return w.writeJSON(runs)
}

// jsonRun adds derived fields to the report.
type jsonRun struct {
	*model.RunReport
	DurationSeconds float64 `json:"duration_seconds"`
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if w.indent {
		enc.SetIndent(w.indentPrefix, w.indentString)
	}
	// Encode appends the trailing newline.
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}
