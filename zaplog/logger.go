// Package zaplog adapts zap to the outbox Logger interface.
package zaplog

import (
	"fmt"

	"go.uber.org/zap"

	outbox "github.com/velmie/txoutbox"
)

// Logger forwards key/value pairs to a sugared zap logger.
type Logger struct {
	s *zap.SugaredLogger
}

var _ outbox.Logger = (*Logger)(nil)

// New wraps l. A nil l yields a no-op logger.
func New(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}

	return &Logger{s: l.Sugar()}
}

// NewProduction builds a JSON logger at info level, or debug when verbose.
func NewProduction(verbose bool) (*Logger, *zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger: %w", err)
	}

	return New(l), l, nil
}

// Debug implements outbox.Logger.
func (l *Logger) Debug(msg string, args ...any) {
	l.s.Debugw(msg, args...)
}

// Info implements outbox.Logger.
func (l *Logger) Info(msg string, args ...any) {
	l.s.Infow(msg, args...)
}

// Warn implements outbox.Logger.
func (l *Logger) Warn(msg string, args ...any) {
	l.s.Warnw(msg, args...)
}

// Error implements outbox.Logger.
func (l *Logger) Error(msg string, args ...any) {
	l.s.Errorw(msg, args...)
}
