package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeySessionID ctxKey = "session_id"
)

// basic global logger, JSON to stdout until Setup is called.
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// LogConfig selects level (debug, info, warn, error) and format (json, text).
type LogConfig struct {
	Level  string
	Format string
	Output io.Writer
}

// Setup replaces the global logger.
func Setup(cfg LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger = slog.New(handler)
	return logger
}

func Logger() *slog.Logger {
	return logger
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// WithSessionID stores a session_id in the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, sessionID)
}

// EnsureSessionID stores sessionID unless ctx already carries one.
func EnsureSessionID(ctx context.Context, sessionID string) context.Context {
	if SessionIDFromContext(ctx) != "" {
		return ctx
	}
	return WithSessionID(ctx, sessionID)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeySessionID).(string)
	return id
}

// LoggerFromContext adds request_id and session_id if present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	l := logger
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		l = l.With("request_id", reqID)
	}
	if sessID := SessionIDFromContext(ctx); sessID != "" {
		l = l.With("session_id", sessID)
	}
	return l
}

// Clip shortens s to n runes for log previews.
func Clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
