package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gunestv/dizicrawl/internal/model"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown report format")

// Writer outputs run reports.
type Writer interface {
	// Write outputs one run report and returns the bytes written.
	Write(report *model.RunReport) (int, error)

	// WriteSummary outputs an overview of several runs, one per site.
	WriteSummary(reports []*model.RunReport) (int, error)
}

// Format names a report format.
type Format string

// Supported formats.
const (
	FormatSimple   Format = "simple"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a format name. "md" is accepted for markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatSimple, FormatJSON, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "":
		return FormatSimple, nil
	default:
		return "", fmt.Errorf("%w %q (want simple, json or markdown)", ErrUnknownFormat, s)
	}
}

// New returns the writer for format.
func New(format Format, output io.Writer) (Writer, error) {
	switch format {
	case FormatSimple, "":
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to several Writers, for example the terminal and a
// file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to every writer and stops on the first error.
func (m *MultiWriter) Write(report *model.RunReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the summary to every writer.
func (m *MultiWriter) WriteSummary(reports []*model.RunReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// status is the one-line verdict of a run.
func status(r *model.RunReport) string {
	switch {
	case r.StopReason.Fatal():
		return "FAILED - " + r.Stop
	case r.StopReason == model.StopCancelled:
		return "CANCELLED"
	case r.StopReason.Err() != nil:
		return "STOPPED EARLY - " + r.Stop
	case r.ItemsFailed > 0:
		return fmt.Sprintf("Complete with %d failed item(s)", r.ItemsFailed)
	default:
		return "Complete"
	}
}

const timeLayout = "2006-01-02 15:04:05 MST"
