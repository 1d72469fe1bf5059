// Package report renders run reports.
//
// Three formats are supported:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: the RunReport as JSON for scripts
//   - MarkdownWriter: a shareable document with tables and a chart
//
// Writers implement Writer, so they can be chosen by name with New and
// combined with MultiWriter.
package report
