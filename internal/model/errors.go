package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy. Every way a run, a page or an item can end is
// attributable to one of these.
var (
	// ErrChallengeFailure means no usable session could be acquired.
	// It is fatal to the whole run.
	ErrChallengeFailure = errors.New("challenge failure")

	// ErrBlocked means the session was rejected again after one refresh.
	ErrBlocked = errors.New("blocked")

	// ErrNotFound means the server reported the resource missing.
	ErrNotFound = errors.New("not found")

	// ErrTransport means the bounded transport retries were exhausted.
	ErrTransport = errors.New("transport error")

	// ErrExtractionGap means an extractor returned partial data.
	// It is logged and never fatal.
	ErrExtractionGap = errors.New("extraction gap")

	// ErrPersist means the catalog file could not be read or replaced.
	// It is fatal: the run cannot promise durability any more.
	ErrPersist = errors.New("catalog persist failure")
)

// ChallengeFailure wraps a solver error so that errors.Is(err,
// ErrChallengeFailure) holds.
func ChallengeFailure(cause error) error {
	if cause == nil {
		return ErrChallengeFailure
	}
	if errors.Is(cause, ErrChallengeFailure) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrChallengeFailure, cause)
}

// ExtractionGap names the fields an extractor could not find on a page.
type ExtractionGap struct {
	// URL is the page the extractor ran on.
	URL string

	// Missing lists the absent field names in extraction order.
	Missing []string
}

// Error implements error.
func (e *ExtractionGap) Error() string {
	return fmt.Sprintf("extraction gap at %s: missing %s", e.URL, strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrExtractionGap) hold.
func (e *ExtractionGap) Is(target error) bool {
	return target == ErrExtractionGap
}

// NewExtractionGap returns nil when nothing is missing so that
// extractors can return it unconditionally.
func NewExtractionGap(url string, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return &ExtractionGap{URL: url, Missing: missing}
}
