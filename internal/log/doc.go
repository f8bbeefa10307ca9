// Package log provides slog loggers that mask sensitive values before they
// are written.
//
// The SecureHandler masks:
//   - HTTP headers such as Authorization and Cookie
//   - credential keys (password, token, api_key, dsn) and keys containing them
//   - values that look like bearer tokens, JWTs, AWS keys or PEM private keys
//   - the password part of any URL with userinfo, so a PostgreSQL DSN logs as
//     postgres://crawler:***REDACTED***@db/crawl
//
// Hex digests such as URL fingerprints are left readable.
//
// # Usage
//
//	logger, err := log.NewLogger(os.Stderr, log.FormatJSON, slog.LevelInfo)
//	if err != nil {
//		return err
//	}
//	logger.Info("connected", "dsn", cfg.Database.DSN) // dsn=***REDACTED***
package log
