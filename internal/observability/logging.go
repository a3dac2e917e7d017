package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// TracedLogger is a structured logger with automatic trace correlation.
// It wraps slog.Logger and stamps workflow/execution context plus the
// active OpenTelemetry trace and span ids onto every entry.
type TracedLogger struct {
	logger          *slog.Logger
	workflowID      string
	executionID     string
	redactSensitive bool
}

// NewTracedLogger creates a TracedLogger bound to one workflow execution.
func NewTracedLogger(handler slog.Handler, workflowID, executionID string) *TracedLogger {
	return &TracedLogger{
		logger:          slog.New(handler),
		workflowID:      workflowID,
		executionID:     executionID,
		redactSensitive: true,
	}
}

// Debug logs a debug-level message with trace correlation. Debug entries
// skip redaction so local runs keep full fidelity.
func (l *TracedLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}

// Info logs an info-level message; sensitive values in args are redacted.
func (l *TracedLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Info(msg, args...)
}

// Warn logs a warning-level message; sensitive values in args are redacted.
func (l *TracedLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Warn(msg, args...)
}

// Error logs an error-level message; sensitive values in args are redacted.
func (l *TracedLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Error(msg, args...)
}

// WithContext returns an slog.Logger carrying the execution context plus
// trace_id/span_id extracted from the active span, when one exists.
func (l *TracedLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger.With(
		slog.String("workflow_id", l.workflowID),
		slog.String("execution_id", l.executionID),
	)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		logger = logger.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return logger
}

// NewJSONHandler creates a JSON log handler for production use.
func NewJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// NewTextHandler creates a human-readable text log handler.
func NewTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// NewLogger builds a plain *slog.Logger from level and format strings as
// they appear in the logging config section. Unknown values fall back to
// info/text.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = NewJSONHandler(w, ParseLevel(level))
	} else {
		handler = NewTextHandler(w, ParseLevel(level))
	}

	return slog.New(handler)
}

// ParseLevel maps a config level string to an slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactSensitiveData replaces values of credential-bearing keys with a
// placeholder. Keys are normalized (lowercase, underscores stripped)
// before matching.
func redactSensitiveData(args []any) []any {
	if len(args)%2 != 0 {
		return args
	}

	sensitiveFields := map[string]bool{
		"apikey":        true,
		"secret":        true,
		"password":      true,
		"token":         true,
		"credential":    true,
		"authorization": true,
		"smtppassword":  true,
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 0; i < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			normalizedKey := strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if sensitiveFields[normalizedKey] {
				redacted[i+1] = "[REDACTED]"
			}
		}
	}

	return redacted
}
