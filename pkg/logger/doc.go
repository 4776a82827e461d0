// Package logger builds the process slog.Logger.
//
// Records are written as JSON (or text) to stdout. A context handler
// appends attributes pulled from the context by ContextExtractor funcs,
// which is how request IDs and user IDs reach every line logged while
// serving a request or running a job. When SENTRY_DSN is set, errors and
// optionally warnings are also forwarded to Sentry.
//
//	log := logger.New(cfg.Log, httpapi.RequestIDExtractor(), httpapi.UserIDExtractor())
//	defer logger.Flush(cfg.Log)
package logger
