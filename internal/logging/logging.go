// Package logging builds the process slog.Logger and carries per-request
// loggers through context.Context.
//
// The pipeline derives one logger per admitted request (request, caller and
// chat identifiers attached) and stores it with ForRequest. Everything below
// the pipeline retrieves it with FromContext, falling back to its own
// component logger when called outside a request.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a text logger on stderr. Stdout is left to command output such
// as the parse report.
func New(level string) *slog.Logger {
	return NewWriter(os.Stderr, level)
}

// NewWriter returns a text logger writing to w at the given level.
func NewWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel maps a config level to slog. Besides the plain names it accepts
// slog offsets like "debug+2"; anything else means info.
func ParseLevel(value string) slog.Level {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type contextKey struct{}

var loggerKey = contextKey{}

// WithLogger returns a new context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// ForRequest derives a logger from base with attrs and stores it in ctx.
func ForRequest(ctx context.Context, base *slog.Logger, attrs ...any) (context.Context, *slog.Logger) {
	if base == nil {
		base = slog.Default()
	}
	log := base.With(attrs...)
	return WithLogger(ctx, log), log
}

// FromContext returns the request logger, or fallback when none was stored.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
