// Package logging adapts common loggers to es.Logger.
package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sirupsen/logrus"

	"github.com/getpup/pupstream/es"
)

// Logrus adapts a logrus logger or entry.
type Logrus struct {
	log logrus.FieldLogger
}

var _ es.Logger = (*Logrus)(nil)

// NewLogrus wraps l. A nil l uses the logrus standard logger.
func NewLogrus(l logrus.FieldLogger) *Logrus {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Logrus{log: l}
}

func (l *Logrus) entry(ctx context.Context, keyvals []interface{}) logrus.FieldLogger {
	fields := Fields(keyvals)
	if e, ok := l.log.(*logrus.Entry); ok {
		return e.WithContext(ctx).WithFields(fields)
	}
	if lg, ok := l.log.(*logrus.Logger); ok {
		return lg.WithContext(ctx).WithFields(fields)
	}
	return l.log.WithFields(fields)
}

// Debug implements es.Logger.
func (l *Logrus) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	l.entry(ctx, keyvals).Debug(msg)
}

// Info implements es.Logger.
func (l *Logrus) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	l.entry(ctx, keyvals).Info(msg)
}

// Warn implements es.Logger.
func (l *Logrus) Warn(ctx context.Context, msg string, keyvals ...interface{}) {
	l.entry(ctx, keyvals).Warn(msg)
}

// Error implements es.Logger.
func (l *Logrus) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	l.entry(ctx, keyvals).Error(msg)
}

// Fields converts alternating keys and values to logrus fields. Non-string
// keys are formatted with %v and a trailing key gets the value "(MISSING)".
func Fields(keyvals []interface{}) logrus.Fields {
	fields := make(logrus.Fields, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if i+1 < len(keyvals) {
			fields[key] = keyvals[i+1]
		} else {
			fields[key] = "(MISSING)"
		}
	}
	return fields
}

// Slog adapts a log/slog logger.
type Slog struct {
	log *slog.Logger
}

var _ es.Logger = (*Slog)(nil)

// NewSlog wraps l. A nil l uses slog.Default().
func NewSlog(l *slog.Logger) *Slog {
	if l == nil {
		l = slog.Default()
	}
	return &Slog{log: l}
}

// Debug implements es.Logger.
func (l *Slog) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	l.log.DebugContext(ctx, msg, keyvals...)
}

// Info implements es.Logger.
func (l *Slog) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	l.log.InfoContext(ctx, msg, keyvals...)
}

// Warn implements es.Logger.
func (l *Slog) Warn(ctx context.Context, msg string, keyvals ...interface{}) {
	l.log.WarnContext(ctx, msg, keyvals...)
}

// Error implements es.Logger.
func (l *Slog) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	l.log.ErrorContext(ctx, msg, keyvals...)
}
