// Package logging builds the process logger: a text or JSON slog handler,
// decorated with request-scoped attributes and optionally mirrored to Sentry.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"

	"chatlibre/internal/config"
)

const flushTimeout = 2 * time.Second

// New returns a logger writing to stderr according to cfg.
func New(cfg config.LogConfig) (*slog.Logger, error) {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	if cfg.SentryDSN == "" {
		return slog.New(NewDecorator(handler, RequestIDExtractor)), nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		EnableLogs:  true,
	}); err != nil {
		slog.New(handler).Error("failed to initialize sentry", "error", err)
		return slog.New(NewDecorator(handler, RequestIDExtractor)), nil
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())

	return slog.New(NewDecorator(newMultiHandler(handler, sentryHandler), RequestIDExtractor)), nil
}

// Flush drains buffered Sentry events. It is a no-op when Sentry is not
// initialized.
func Flush() {
	sentry.Flush(flushTimeout)
}
