// Package zaplog adapts a zap logger to core.Logger.
package zaplog

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Swind/go-executors/core"
)

// Logger implements core.Logger on top of a *zap.Logger.
type Logger struct {
	z *zap.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps z. A nil z yields a logger discarding everything.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// NewProduction builds a zap logger for the given level and format and wraps
// it. Format is "json" or "console".
func NewProduction(level, format string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("zaplog: %w", err)
	}

	cfg := zap.NewProductionConfig()
	switch format {
	case "", "json":
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("zaplog: unknown format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("zaplog: build: %w", err)
	}
	return New(z), nil
}

// Named returns a logger whose entries carry name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.Named(name)}
}

// Zap returns the wrapped logger.
func (l *Logger) Zap() *zap.Logger { return l.z }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.z.Sync() }

func (l *Logger) Debug(msg string, fields ...core.Field) { l.log(zapcore.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...core.Field)  { l.log(zapcore.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...core.Field)  { l.log(zapcore.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...core.Field) { l.log(zapcore.ErrorLevel, msg, fields) }

func (l *Logger) log(lvl zapcore.Level, msg string, fields []core.Field) {
	ce := l.z.Check(lvl, msg)
	if ce == nil {
		return
	}
	ce.Write(convert(fields)...)
}

func convert(fields []core.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}
