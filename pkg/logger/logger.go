package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// Config controls the process logger.
type Config struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"` // json or text
	Sentry SentryConfig
}

// SentryConfig enables error fan-out to Sentry when DSN is set.
type SentryConfig struct {
	DSN         string `env:"SENTRY_DSN"`
	Environment string `env:"SENTRY_ENVIRONMENT" envDefault:"production"`
	// Warnings go to Sentry as logs; errors also open issues.
	WarnToSentry bool `env:"SENTRY_SEND_WARNINGS" envDefault:"true"`
}

// New builds a logger writing to stdout. Context extractors add request
// scoped attributes to every record, including the ones sent to Sentry.
func New(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	return slog.New(NewContextHandler(newHandler(os.Stdout, cfg), extractors...))
}

// Flush waits for buffered Sentry events. It is a no-op without a DSN.
func Flush(cfg Config) {
	if cfg.Sentry.DSN != "" {
		sentry.Flush(2 * time.Second)
	}
}

func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var base slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}

	if cfg.Sentry.DSN == "" {
		return base
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		EnableLogs:  true,
	})
	if err != nil {
		slog.New(base).Error("sentry disabled", slog.Any("error", err))
		return base
	}

	logLevels := []slog.Level{slog.LevelError}
	if cfg.Sentry.WarnToSentry {
		logLevels = []slog.Level{slog.LevelWarn, slog.LevelError}
	}
	sh := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   logLevels,
	}.NewSentryHandler(context.Background())

	return newMultiHandler(base, sh)
}

// ParseLevel maps debug, info, warn and error to slog levels.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewNope returns a logger that discards everything. Packages use it as
// the default when no logger is injected.
func NewNope() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
