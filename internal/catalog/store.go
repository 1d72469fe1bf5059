package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gunestv/dizicrawl/internal/canon"
	"github.com/gunestv/dizicrawl/internal/model"
)

// ErrCorrupt means the catalog file exists but is not a JSON array of
// entries. The run must not overwrite it.
var ErrCorrupt = errors.New("corrupt catalog file")

const filePerm = 0o644

// Store reads and atomically rewrites one catalog file.
type Store struct {
	path   string
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore returns a store for the file at path.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the catalog file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the catalog. A missing or empty file yields an empty
// catalog. Entries sharing a canonical URL are merged in file order and
// entries without a URL are dropped.
func (s *Store) Load(policy Policy) (*Catalog, error) {
	cat := New(policy)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no catalog yet, starting empty", "path", s.path)
		return cat, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.logger.Warn("catalog file is empty, starting empty", "path", s.path)
		return cat, nil
	}

	var entries []*model.CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrCorrupt, s.path, err)
	}

	skipped := 0
	for _, e := range entries {
		if e == nil || e.URL == "" {
			skipped++
			continue
		}
		if !cat.upsert(e).Added {
			cat.merged++
		}
	}
	if skipped > 0 || cat.merged > 0 {
		s.logger.Warn("catalog normalized on load", "path", s.path, "merged_duplicates", cat.merged, "dropped_without_url", skipped)
	}
	s.logger.Debug("catalog loaded", "path", s.path, "entries", cat.Len())
	return cat, nil
}

// Persist writes the whole catalog to a temporary file next to the
// target, syncs it and renames it into place. On any failure the previous
// file is left untouched.
func (s *Store) Persist(cat *Catalog) (err error) {
	data, err := Encode(cat.Entries())
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()           //nolint:errcheck // already failing
			_ = os.Remove(tmp.Name()) //nolint:errcheck // best effort cleanup
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp catalog: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp catalog: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp catalog: %w", err)
	}
	if err = os.Chmod(tmp.Name(), filePerm); err != nil {
		return fmt.Errorf("chmod temp catalog: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

// Encode renders entries as the catalog file body: a JSON array indented
// by two spaces, HTML escaping off, with a trailing newline.
func Encode(entries []*model.CatalogEntry) ([]byte, error) {
	if entries == nil {
		entries = []*model.CatalogEntry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Problem is one invariant violation found by Verify.
type Problem struct {
	Index  int
	URL    string
	Reason string
}

// Verify checks the file as stored, without merging: every entry has a
// URL, no two entries share a canonical URL and no entry lists a child
// twice. A missing file has no problems.
func (s *Store) Verify() ([]Problem, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(bytes.TrimSpace(data)) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", s.path, err)
	}

	var entries []*model.CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrCorrupt, s.path, err)
	}

	var problems []Problem
	first := make(map[string]int, len(entries))
	for i, e := range entries {
		if e == nil || e.URL == "" {
			problems = append(problems, Problem{Index: i, Reason: "entry has no url"})
			continue
		}
		key := canon.Key(e.URL)
		if j, dup := first[key]; dup {
			problems = append(problems, Problem{Index: i, URL: e.URL, Reason: fmt.Sprintf("duplicate of entry %d", j)})
		} else {
			first[key] = i
		}

		children := make(map[string]bool, len(e.Children))
		for _, ch := range e.Children {
			ck := canon.Key(ch.URL)
			if children[ck] {
				problems = append(problems, Problem{Index: i, URL: e.URL, Reason: "duplicate child " + ch.URL})
			}
			children[ck] = true
		}
	}
	return problems, nil
}
