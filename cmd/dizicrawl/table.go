package main

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// newTable returns a rounded table that renders to w.
func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(header)
	return t
}

// formatTime renders a timestamp for tables; the zero time is "-".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
