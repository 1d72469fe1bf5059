// Package fetcher owns the crawl session and turns single transport
// exchanges into the two-tier fetch protocol.
//
// A PageFetcher holds the current model.Session. Every fetch goes through
// the lightweight Transport with that session. When the transport reports
// Blocked the session is discarded, a new one is acquired from the
// session.Solver exactly once and the same URL is retried exactly once.
// Transport errors are retried in a bounded loop with backoff delays.
//
// Fetch returns an error only for conditions that must end the run:
// a challenge failure or a cancelled context. Everything else, including
// a second Blocked, is an outcome the caller decides about.
package fetcher
