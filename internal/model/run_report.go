package model

import (
	"context"
	"errors"
	"time"
)

// StopReason records why a paginated walk terminated.
type StopReason int

const (
	// StopNone means the walk has not terminated.
	StopNone StopReason = iota

	// StopEndOfCatalog: a listing page returned 404.
	StopEndOfCatalog

	// StopEmptyPages: the consecutive empty page threshold was reached.
	StopEmptyPages

	// StopKnownThreshold: the consecutive known item threshold was reached.
	StopKnownThreshold

	// StopPageCap: the configured page cap was reached.
	StopPageCap

	// StopBlocked: a listing page stayed blocked after one session refresh.
	StopBlocked

	// StopTransportError: a listing page exhausted its transport retries.
	StopTransportError

	// StopChallengeFailure: no session could be acquired.
	StopChallengeFailure

	// StopPersistFailure: the catalog could not be loaded or written.
	StopPersistFailure

	// StopCancelled: the run context was cancelled.
	StopCancelled
)

// String returns the reason name used in reports and the ledger.
func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "running"
	case StopEndOfCatalog:
		return "end_of_catalog"
	case StopEmptyPages:
		return "empty_pages"
	case StopKnownThreshold:
		return "known_threshold"
	case StopPageCap:
		return "page_cap"
	case StopBlocked:
		return "blocked"
	case StopTransportError:
		return "transport_error"
	case StopChallengeFailure:
		return "challenge_failure"
	case StopPersistFailure:
		return "persist_failure"
	case StopCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStopReason is the inverse of String. Unknown names map to StopNone.
func ParseStopReason(s string) StopReason {
	for r := StopNone; r <= StopCancelled; r++ {
		if r.String() == s {
			return r
		}
	}
	return StopNone
}

// Err maps the reason to the error kind it is attributed to. Normal
// terminations (end of catalog, thresholds, page cap) return nil.
func (r StopReason) Err() error {
	switch r {
	case StopBlocked:
		return ErrBlocked
	case StopTransportError:
		return ErrTransport
	case StopChallengeFailure:
		return ErrChallengeFailure
	case StopPersistFailure:
		return ErrPersist
	case StopCancelled:
		return context.Canceled
	default:
		return nil
	}
}

// Fatal reports whether the run must exit non-zero.
func (r StopReason) Fatal() bool {
	return r == StopChallengeFailure || r == StopPersistFailure
}

// ItemFailure records one item that was skipped after its retries.
type ItemFailure struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// RunReport summarizes a crawl run.
type RunReport struct {
	Site        string    `json:"site"`
	Kind        Kind      `json:"kind"`
	BaseURL     string    `json:"base_url"`
	CatalogFile string    `json:"catalog_file"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	PagesWalked    int `json:"pages_walked"`
	ItemsSeen      int `json:"items_seen"`
	ItemsAdded     int `json:"items_added"`
	ItemsUpdated   int `json:"items_updated"`
	ItemsSkipped   int `json:"items_skipped"`
	ItemsFailed    int `json:"items_failed"`
	ChildrenAdded  int `json:"children_added"`
	ExtractionGaps int `json:"extraction_gaps"`

	SessionAcquisitions int `json:"session_acquisitions"`
	CatalogSize         int `json:"catalog_size"`

	StopReason StopReason `json:"-"`
	Stop       string     `json:"stop_reason"`
	Error      string     `json:"error,omitempty"`

	Failures []ItemFailure `json:"failures,omitempty"`
}

// NewRunReport starts a report.
func NewRunReport(site string, kind Kind, baseURL, catalogFile string, started time.Time) *RunReport {
	return &RunReport{
		Site:        site,
		Kind:        kind,
		BaseURL:     baseURL,
		CatalogFile: catalogFile,
		StartedAt:   started,
	}
}

// Finish stamps the terminal state.
func (r *RunReport) Finish(reason StopReason, err error, at time.Time) {
	r.StopReason = reason
	r.Stop = reason.String()
	r.FinishedAt = at
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AddFailure records a skipped item.
func (r *RunReport) AddFailure(url, title string, err error) {
	r.ItemsFailed++
	r.Failures = append(r.Failures, ItemFailure{
		URL:    url,
		Title:  title,
		Kind:   ErrorKind(err),
		Reason: err.Error(),
	})
}

// ErrorKind names the taxonomy kind of err.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrChallengeFailure):
		return "challenge_failure"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransport):
		return "transport_error"
	case errors.Is(err, ErrExtractionGap):
		return "extraction_gap"
	case errors.Is(err, ErrPersist):
		return "persist_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
