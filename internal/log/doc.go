// Package log builds the slog loggers used by toxguard.
//
// Every logger goes through a SecureHandler, which masks two kinds of
// attribute values before they are written:
//   - secrets such as API tokens, bearer headers and cookies, matched by
//     key name or by value pattern
//   - text taken from scanned pages (keys such as "text", "fragment" or
//     "original"), which is replaced by its length
//
// Usage:
//
//	logger := log.New(os.Stderr, log.Options{Verbose: true})
//	logger.Debug("fragment cloaked", "id", id, "fragment", text) // fragment=[42 chars]
package log
