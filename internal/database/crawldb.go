package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/gunestv/dizicrawl/internal/model"
)

// FileName is the ledger file inside the data directory.
const FileName = "dizicrawl.db"

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// CrawlDB is the SQLite run ledger. It is safe for concurrent use.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers do not block the
	// crawl's writes.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the ledger in dbDir. With CreateIfNotExists false
// a missing database is an error.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("ledger not found at %s (run a crawl first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check ledger path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	// mode=rw refuses to create a file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per HTTP exchange
	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site TEXT NOT NULL,
		url TEXT NOT NULL,
		outcome TEXT NOT NULL,
		status_code INTEGER,
		bytes INTEGER,
		elapsed_ms INTEGER,
		error TEXT,
		fetched_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_site ON fetches(site);
	CREATE INDEX IF NOT EXISTS idx_fetches_url ON fetches(url);
	CREATE INDEX IF NOT EXISTS idx_fetches_fetched_at ON fetches(fetched_at);

	-- One row per finished run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site TEXT NOT NULL,
		kind TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		stop_reason TEXT NOT NULL,
		items_added INTEGER,
		items_updated INTEGER,
		items_failed INTEGER,
		catalog_size INTEGER,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// RecordFetch stores one exchange for site.
func (cdb *CrawlDB) RecordFetch(ctx context.Context, site string, rec model.FetchRecord) error {
	query := `
	INSERT INTO fetches (site, url, outcome, status_code, bytes, elapsed_ms, error, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	fetchedAt := rec.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	_, err := cdb.db.ExecContext(ctx, query,
		site,
		rec.URL,
		rec.Outcome.String(),
		rec.StatusCode,
		rec.Bytes,
		rec.Elapsed.Milliseconds(),
		rec.Error,
		formatTimestamp(fetchedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}
	return nil
}

// Observer returns a function that records every exchange for site. It
// fits transport.WithObserver. Ledger write errors are logged and never
// disturb the crawl.
func (cdb *CrawlDB) Observer(site string, logger *slog.Logger) func(context.Context, model.FetchRecord) {
	return func(ctx context.Context, rec model.FetchRecord) {
		// The exchange happened even when the request context was
		// cancelled right after, so it is recorded regardless.
		if err := cdb.RecordFetch(context.WithoutCancel(ctx), site, rec); err != nil {
			logger.Warn("ledger write failed", "url", rec.URL, "error", err)
		}
	}
}

// FetchSummary counts the exchanges of site by outcome within
// [from, to]. A zero bound is open.
func (cdb *CrawlDB) FetchSummary(ctx context.Context, site string, from, to time.Time) (map[model.OutcomeKind]int, error) {
	query := `
	SELECT outcome, COUNT(*) FROM fetches
	WHERE site = ?
	`
	args := []any{site}
	if !from.IsZero() {
		query += " AND fetched_at >= ?"
		args = append(args, formatTimestamp(from))
	}
	if !to.IsZero() {
		query += " AND fetched_at <= ?"
		args = append(args, formatTimestamp(to))
	}
	query += " GROUP BY outcome"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize fetches: %w", err)
	}
	defer rows.Close()

	summary := make(map[model.OutcomeKind]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan fetch summary: %w", err)
		}
		kind, err := model.ParseOutcomeKind(name)
		if err != nil {
			continue // rows from a newer binary
		}
		summary[kind] = count
	}
	return summary, rows.Err()
}

// RunMetadata is the summary of a stored run, enough for a history table
// without decoding the report.
type RunMetadata struct {
	ID           int64
	Site         string
	Kind         model.Kind
	StartedAt    time.Time
	FinishedAt   time.Time
	StopReason   string
	ItemsAdded   int
	ItemsUpdated int
	ItemsFailed  int
	CatalogSize  int
}

// SaveRun stores a finished run and returns its id.
func (cdb *CrawlDB) SaveRun(ctx context.Context, report *model.RunReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	query := `
	INSERT INTO runs (site, kind, started_at, finished_at, stop_reason, items_added, items_updated, items_failed, catalog_size, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := cdb.db.ExecContext(ctx, query,
		report.Site,
		string(report.Kind),
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Stop,
		report.ItemsAdded,
		report.ItemsUpdated,
		report.ItemsFailed,
		report.CatalogSize,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	return result.LastInsertId()
}

// ListRuns returns the newest runs first. An empty site lists all sites;
// limit <= 0 means no limit.
func (cdb *CrawlDB) ListRuns(ctx context.Context, site string, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, site, kind, started_at, finished_at, stop_reason, items_added, items_updated, items_failed, catalog_size
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)
	if site != "" {
		query += " AND site = ?"
		args = append(args, site)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var kind, started, finished string
		if err := rows.Scan(
			&meta.ID,
			&meta.Site,
			&kind,
			&started,
			&finished,
			&meta.StopReason,
			&meta.ItemsAdded,
			&meta.ItemsUpdated,
			&meta.ItemsFailed,
			&meta.CatalogSize,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.Kind = model.Kind(kind)
		meta.StartedAt = parseTimestamp(started)
		meta.FinishedAt = parseTimestamp(finished)
		results = append(results, meta)
	}
	return results, rows.Err()
}

// GetRun returns the full report of run id.
func (cdb *CrawlDB) GetRun(ctx context.Context, id int64) (*model.RunReport, error) {
	query := `
	SELECT report_json FROM runs
	WHERE id = ?
	`

	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, query, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	report.StopReason = model.ParseStopReason(report.Stop)
	return &report, nil
}

// ListSites returns every site that has a stored run.
func (cdb *CrawlDB) ListSites(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT site FROM runs
	ORDER BY site
	`

	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// Timestamps are stored as UTC RFC 3339 text so that string order is
// time order.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimeFormat)
}

// timestampFormats contains the timestamp formats the ledger may hold.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimeFormat,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
