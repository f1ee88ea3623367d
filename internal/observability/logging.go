// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the assistant backend.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// ContextKey is the type for context keys carried into log records.
type ContextKey string

const (
	// CorrelationIDKey is the context key for per-turn correlation ids.
	CorrelationIDKey ContextKey = "correlation_id"

	// UserIDKey is the context key for the Telegram user id.
	UserIDKey ContextKey = "user_id"

	// FlowKey is the context key for the pending flow owning the turn.
	FlowKey ContextKey = "flow"
)

// LogConfig configures the logger.
type LogConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" (production) or "text" (development).
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// redactPatterns covers the credentials this process handles: bot tokens,
// API keys, OAuth refresh tokens and bearer headers.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{8,10}:[A-Za-z0-9_-]{35}\b`),                 // telegram bot token
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),                          // openai / anthropic keys
	regexp.MustCompile(`\b1//[A-Za-z0-9_-]{20,}\b`),                      // google refresh token
	regexp.MustCompile(`(?i)(bearer|token|secret)[\s:=]+[A-Za-z0-9._-]{16,}`),
}

// Logger wraps slog with context correlation and secret redaction.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a logger. Unset fields get production defaults.
func NewLogger(cfg LogConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: levelFromString(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &Logger{logger: slog.New(handler)}
}

// NewNopLogger returns a logger that discards everything. For tests.
func NewNopLogger() *Logger {
	return NewLogger(LogConfig{Output: io.Discard})
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
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

// With returns a logger with the given fields attached to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// Debug logs at debug level with context fields attached.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs at info level with context fields attached.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs at warn level with context fields attached.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs at error level with context fields attached.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	attrs := make([]any, 0, len(args)+6)
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok && id != "" {
		attrs = append(attrs, "correlation_id", id)
	}
	if uid, ok := ctx.Value(UserIDKey).(int64); ok && uid != 0 {
		attrs = append(attrs, "user_id", uid)
	}
	if flow, ok := ctx.Value(FlowKey).(string); ok && flow != "" {
		attrs = append(attrs, "flow", flow)
	}
	for _, a := range args {
		attrs = append(attrs, redactValue(a))
	}
	l.logger.Log(ctx, level, redactString(msg), attrs...)
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return redactString(val)
	case error:
		return redactString(val.Error())
	default:
		return v
	}
}

func redactString(s string) string {
	for _, re := range redactPatterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// WithCorrelationID stores a correlation id in the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithUserID stores the user id in the context.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithFlow stores the owning flow name in the context.
func WithFlow(ctx context.Context, flow string) context.Context {
	return context.WithValue(ctx, FlowKey, flow)
}

// CorrelationID retrieves the correlation id from the context, if any.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// UserID retrieves the user id from the context, or 0.
func UserID(ctx context.Context) int64 {
	if id, ok := ctx.Value(UserIDKey).(int64); ok {
		return id
	}
	return 0
}
