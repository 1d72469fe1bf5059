package model

import (
	"fmt"
	"time"
)

// OutcomeKind tags a FetchOutcome.
type OutcomeKind int

const (
	// OutcomeOK means the page was fetched and a document is available.
	OutcomeOK OutcomeKind = iota

	// OutcomeNotFound means the server answered 404. For a listing page this
	// is the expected end-of-catalog signal, not an error.
	OutcomeNotFound

	// OutcomeBlocked means the challenge re-triggered: the session is no
	// longer accepted.
	OutcomeBlocked

	// OutcomeTransportError means the fetch failed below the HTTP layer or
	// returned an unusable response. It is transient and retried.
	OutcomeTransportError
)

// String returns the outcome name used in logs and the ledger.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// ParseOutcomeKind is the inverse of OutcomeKind.String.
func ParseOutcomeKind(s string) (OutcomeKind, error) {
	for k := OutcomeOK; k <= OutcomeTransportError; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown fetch outcome %q", s)
}

// FetchOutcome is the result of one fetch. Exactly one variant is set:
// Document is non-nil only for OutcomeOK and Cause only for
// OutcomeTransportError. Build values with Ok, NotFound, Blocked or
// TransportError.
type FetchOutcome struct {
	Kind     OutcomeKind
	Document *Document
	Cause    error
}

// Ok wraps a fetched document.
func Ok(doc *Document) FetchOutcome {
	return FetchOutcome{Kind: OutcomeOK, Document: doc}
}

// NotFound reports a 404.
func NotFound() FetchOutcome {
	return FetchOutcome{Kind: OutcomeNotFound}
}

// Blocked reports that the session was rejected.
func Blocked() FetchOutcome {
	return FetchOutcome{Kind: OutcomeBlocked}
}

// TransportError reports a transient failure with its cause.
func TransportError(cause error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeTransportError, Cause: cause}
}

// IsOK reports whether a document is available.
func (o FetchOutcome) IsOK() bool {
	return o.Kind == OutcomeOK && o.Document != nil
}

// Err converts a non-OK outcome to its taxonomy error. It returns nil
// for OutcomeOK.
func (o FetchOutcome) Err() error {
	switch o.Kind {
	case OutcomeOK:
		return nil
	case OutcomeNotFound:
		return ErrNotFound
	case OutcomeBlocked:
		return ErrBlocked
	case OutcomeTransportError:
		if o.Cause != nil {
			return fmt.Errorf("%w: %w", ErrTransport, o.Cause)
		}
		return ErrTransport
	default:
		return fmt.Errorf("unknown fetch outcome %d", int(o.Kind))
	}
}

// String implements fmt.Stringer.
func (o FetchOutcome) String() string {
	if o.Kind == OutcomeTransportError && o.Cause != nil {
		return o.Kind.String() + ": " + o.Cause.Error()
	}
	return o.Kind.String()
}

// FetchRecord describes one HTTP exchange as seen by the transport. It is
// what the fetch ledger stores.
type FetchRecord struct {
	URL        string
	Outcome    OutcomeKind
	StatusCode int
	Bytes      int
	Elapsed    time.Duration
	FetchedAt  time.Time
	Error      string
}
