// Package egress routes crawler traffic through a SOCKS5 proxy: either an
// operator-supplied one or an embedded Tor daemon started with tornago.
//
// The same Proxy feeds both sides of a crawl. The challenge solver passes
// URL to the browser launcher, and the HTTP transport dials through
// Transport, so the session is issued to the address that later uses it.
package egress
