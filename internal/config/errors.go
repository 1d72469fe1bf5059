package config

import "errors"

// Configuration validation errors returned by Config.Validate. Callers
// match them with errors.Is.
var (
	// ErrNoBaseURL is returned when neither --base-url nor a site section
	// provides the catalog site.
	ErrNoBaseURL = errors.New("no base URL: use --base-url or --site with a configured site")

	// ErrInvalidBaseURL is returned when the base URL is not an absolute
	// http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid base URL: must be an absolute http or https URL")

	// ErrInvalidKind is returned for kinds other than movies and series.
	ErrInvalidKind = errors.New("invalid kind: must be movies or series")

	// ErrNoCatalogFile is returned when no catalog path could be derived.
	ErrNoCatalogFile = errors.New("no catalog file specified")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidEmptyPageThreshold is returned when the empty page
	// threshold is below one; zero would end every walk immediately.
	ErrInvalidEmptyPageThreshold = errors.New("invalid empty page threshold: must be at least 1")

	// ErrInvalidMaxPages is returned for a negative page cap. Use 0 to
	// disable the cap.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidTransportAttempts is returned when fewer than one attempt
	// is configured.
	ErrInvalidTransportAttempts = errors.New("invalid transport attempts: must be at least 1")

	// ErrInvalidDelay is returned for a negative retry delay, request
	// delay or jitter.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidRefreshAfter is returned for a negative refresh age.
	ErrInvalidRefreshAfter = errors.New("invalid refresh-after: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingEgress is returned when both --tor and --proxy are set.
	ErrConflictingEgress = errors.New("conflicting egress: --tor and --proxy cannot be used together")
)
