// Package catalog holds the crawled entries in first-seen order, keyed by
// canonical URL, and persists them to a JSON file.
//
// Store.Persist rewrites the whole file through a temporary file in the
// same directory followed by a rename, so the file on disk is always
// either the previous or the new complete catalog.
package catalog
