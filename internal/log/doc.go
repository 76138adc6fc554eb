// Package log builds the slog loggers used by sitemirror.
//
// Loggers mask sensitive values before they are written: request cookies
// and authorization headers configured for a site, bearer and JWT tokens,
// and proxy passwords embedded in URLs. Masking applies at every verbosity,
// so a verbose log can be shared without leaking a session cookie.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, log.VerbosityFrom(verbose, quiet))
//	logger.Warn("fetch failed", "url", u, "cookie", cookie) // cookie is masked
package log
