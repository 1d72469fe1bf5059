// Package canon turns URLs into catalog keys.
//
// Two URLs that address the same catalog page must yield the same key,
// otherwise the catalog's one-entry-per-URL invariant breaks. Parsing
// follows the WHATWG URL standard (the same algorithm browsers use), and
// the result is then reduced: the query and fragment are dropped and the
// path always ends in exactly one slash.
package canon
