// Package model defines the data structures shared by the crawl engine.
//
// This package contains the following main types:
//   - Session: browser-grade credentials produced by a challenge solver
//   - FetchOutcome: the four-way classification of a single fetch
//   - Document: a fetched page body with its status and hash
//   - SummaryItem, DetailRecord, ChildRecord: extracted records
//   - CatalogEntry: the persisted, URL-keyed form of a DetailRecord
//   - RunReport: the summary of one crawl run and why it stopped
//
// Models live in their own package because the fetcher, crawler, catalog
// and report packages all exchange them.
package model
