// Package pipeline runs the per-item work of a crawl as an ordered list of
// steps.
//
// A Job carries one summary item through the steps: fetch the detail page,
// collect children, merge into the catalog and persist. Every step sees
// what the previous ones left on the Job. A step may end the job early
// with ErrStop when there is nothing left to do.
//
// Batch runs several independent crawls, one per configured site, with a
// concurrency limit. A single crawl is always sequential.
package pipeline
