// Package mzap adapts go.uber.org/zap to the mlog.Logger interface.
package mzap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cratery/cratery/internal/platform/mlog"
)

// Logger wraps a *zap.SugaredLogger to satisfy mlog.Logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// InitLogger builds a production zap logger at the requested level.
func InitLogger(levelName string) (*Logger, error) {
	lvl, err := mlog.ParseLevel(levelName)
	if err != nil {
		lvl = mlog.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(lvl))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &Logger{sugar: zl.Sugar()}, nil
}

func toZapLevel(l mlog.Level) zapcore.Level {
	switch l {
	case mlog.FatalLevel:
		return zapcore.FatalLevel
	case mlog.ErrorLevel:
		return zapcore.ErrorLevel
	case mlog.WarnLevel:
		return zapcore.WarnLevel
	case mlog.DebugLevel:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *Logger) Info(args ...any)                  { l.sugar.Info(args...) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Infoln(args ...any)                { l.sugar.Info(args...) }
func (l *Logger) Error(args ...any)                 { l.sugar.Error(args...) }
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *Logger) Errorln(args ...any)               { l.sugar.Error(args...) }
func (l *Logger) Warn(args ...any)                  { l.sugar.Warn(args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Warnln(args ...any)                { l.sugar.Warn(args...) }
func (l *Logger) Debug(args ...any)                 { l.sugar.Debug(args...) }
func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Debugln(args ...any)               { l.sugar.Debug(args...) }
func (l *Logger) Fatal(args ...any)                 { l.sugar.Fatal(args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.sugar.Fatalf(format, args...) }

//nolint:ireturn
func (l *Logger) WithFields(fields ...any) mlog.Logger {
	return &Logger{sugar: l.sugar.With(fields...)}
}

func (l *Logger) Sync() error { return l.sugar.Sync() }
