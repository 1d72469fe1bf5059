// Package database provides the SQLite run ledger for dizicrawl.
//
// The CrawlDB stores:
//   - one row per HTTP exchange (URL, outcome, status, size, elapsed),
//   - one row per finished run with its report as JSON.
//
// The catalog file stays the source of truth for entries; the ledger only
// answers "what happened": the history command reads it, and the
// transport writes to it through an observer.
//
// modernc.org/sqlite is CGO-free, so the binary cross-compiles, and WAL
// mode keeps the history command readable while a scheduled crawl writes.
package database
