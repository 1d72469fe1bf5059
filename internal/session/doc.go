// Package session obtains the credentials that let the crawler past the
// catalog site's bot challenge.
//
// A Solver produces a model.Session: cookies plus the user agent they were
// issued to. RodSolver drives a real browser with go-rod and the stealth
// evasions, waits for the interstitial to clear and harvests the cookies.
// StaticSolver returns credentials the operator solved by hand. Detector
// recognises the interstitial, both by page title in the browser and by
// document structure in the HTTP transport.
package session
