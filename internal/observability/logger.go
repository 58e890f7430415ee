package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/asksql/asksql/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const (
	traceIDKey   ctxKey = "trace_id"
	sessionIDKey ctxKey = "session_id"
)

// LogWriter returns the rotating file writer configured by ASKSQL_LOG_FILE,
// or fallback when no file is configured. The returned closer is never nil.
func LogWriter(cfg config.Config, fallback io.Writer) (io.Writer, io.Closer) {
	if cfg.Observability.LogFile == "" {
		return fallback, io.NopCloser(nil)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Observability.LogFile,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
	if fallback == nil {
		return rotator, rotator
	}
	return io.MultiWriter(fallback, rotator), rotator
}

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(sessionIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
