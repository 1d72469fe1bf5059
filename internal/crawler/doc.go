// Package crawler walks a paginated catalog and keeps the local catalog
// file up to date.
//
// The Paginator fetches listing pages in order and decides, item by item,
// whether there is work: absent items are new, incomplete items are
// updates and complete items are skipped. It stops on the first of
//   - a 404 listing page (end of catalog),
//   - EmptyPageThreshold consecutive empty pages,
//   - KnownThreshold consecutive complete items,
//   - the MaxPages cap,
//   - a listing page that stays blocked or keeps failing,
//   - a challenge failure or cancellation.
//
// The Crawler runs every item with work through the detail, children,
// merge and persist steps and writes the catalog after each upsert, so an
// interrupted run loses at most the item in flight.
//
// Crawling is sequential. Politeness comes from the transport's limiter.
package crawler
