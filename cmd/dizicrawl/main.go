// Package main provides the entry point for the dizicrawl CLI.
//
// dizicrawl keeps a local JSON catalog of a streaming site's movies or
// series up to date. It walks the paginated listing, fetches what is new
// or incomplete and stops as soon as it reaches items it already has.
//
// Usage:
//
//	dizicrawl crawl --base-url https://example.com --kind movies
//	dizicrawl crawl mysite othersite
//	dizicrawl history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
