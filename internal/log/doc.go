// Package log builds the slog loggers used by dizicrawl.
//
// Every logger wraps its text or JSON handler in a SecureHandler, which
// masks challenge credentials before they reach the output: cookie
// headers and clearance tokens, proxy passwords embedded in URLs, and
// any attribute whose key names a secret. The crawler logs URLs and
// session refreshes constantly, so the masking sits in the handler rather
// than at each call site.
//
//	logger := log.New(os.Stderr, log.Options{Verbose: true})
//	logger.Info("session acquired", "cookie", sess.CookieHeader()) // cookie=***REDACTED***
//	slog.SetDefault(logger)
package log
