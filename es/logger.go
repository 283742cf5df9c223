package es

import "context"

// Logger provides a minimal interface for observability and debugging.
// A nil Logger disables logging. Package logging adapts logrus and slog.
type Logger interface {
	// Debug logs verbose operational details such as document counts.
	Debug(ctx context.Context, msg string, keyvals ...interface{})

	// Info logs significant events: appends, snapshots.
	Info(ctx context.Context, msg string, keyvals ...interface{})

	// Warn logs recoverable problems such as retried transient store failures.
	Warn(ctx context.Context, msg string, keyvals ...interface{})

	// Error logs failures surfaced to the caller.
	Error(ctx context.Context, msg string, keyvals ...interface{})
}

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct{}

// Debug implements Logger.
func (NoOpLogger) Debug(_ context.Context, _ string, _ ...interface{}) {}

// Info implements Logger.
func (NoOpLogger) Info(_ context.Context, _ string, _ ...interface{}) {}

// Warn implements Logger.
func (NoOpLogger) Warn(_ context.Context, _ string, _ ...interface{}) {}

// Error implements Logger.
func (NoOpLogger) Error(_ context.Context, _ string, _ ...interface{}) {}

// LoggerOrNoOp returns l, or NoOpLogger when l is nil.
func LoggerOrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
