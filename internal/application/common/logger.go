package common

import "context"

// Log levels understood by every Logger implementation
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Logger provides structured logging for agents and commands
type Logger interface {
	Log(level, message string, metadata map[string]interface{})
}

// Context keys for passing logger through context
type contextKey int

const (
	loggerKey contextKey = iota
)

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext extracts the logger from context, or returns a no-op logger if not found
func LoggerFromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// noOpLogger is a logger that does nothing (fallback when no logger in context)
type noOpLogger struct{}

func (l *noOpLogger) Log(level, message string, metadata map[string]interface{}) {
	// Do nothing
}

// WithFields returns a logger that adds fields to every entry
func WithFields(logger Logger, fields map[string]interface{}) Logger {
	return &fieldLogger{next: logger, fields: fields}
}

type fieldLogger struct {
	next   Logger
	fields map[string]interface{}
}

func (l *fieldLogger) Log(level, message string, metadata map[string]interface{}) {
	merged := make(map[string]interface{}, len(l.fields)+len(metadata))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	l.next.Log(level, message, merged)
}
