// Package storelog wraps zap the way the teacher codebase wraps its logging
// backend: a small interface the rest of the core depends on, plus a no-op
// implementation for tests, so no package reaches for a global logger.
package storelog

import (
	"go.uber.org/zap"
)

// Logger is the logging surface every core package depends on.
type Logger interface {
	With(fields ...zap.Field) Logger
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

type zapLogger struct {
	z *zap.Logger
}

// New wraps a *zap.Logger.
func New(z *zap.Logger) Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &zapLogger{z: z}
}

// NewProduction builds a production zap logger wrapped as a Logger.
func NewProduction() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

func (l *zapLogger) With(fields ...zap.Field) Logger { return &zapLogger{z: l.z.With(fields...)} }
func (l *zapLogger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

type noop struct{}

// NewNoOp returns a logger that discards everything, for tests.
func NewNoOp() Logger { return noop{} }

func (noop) With(...zap.Field) Logger        { return noop{} }
func (noop) Debug(string, ...zap.Field)      {}
func (noop) Info(string, ...zap.Field)       {}
func (noop) Warn(string, ...zap.Field)       {}
func (noop) Error(string, ...zap.Field)      {}
