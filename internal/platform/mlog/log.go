// Package mlog defines the logging interface threaded through every
// command, query, and HTTP handler via context.Context.
package mlog

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Logger is the common interface for log implementations used across Cratery.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Infoln(args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)
	Errorln(args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)
	Warnln(args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)
	Debugln(args ...any)

	Fatal(args ...any)
	Fatalf(format string, args ...any)

	WithFields(fields ...any) Logger

	Sync() error
}

// Level represents the severity threshold of the logging system.
type Level int8

const (
	FatalLevel Level = iota
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

// ParseLevel takes a string level and returns the matching Level constant.
func ParseLevel(lvl string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "fatal":
		return FatalLevel, nil
	case "error":
		return ErrorLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	}

	return 0, fmt.Errorf("not a valid log level: %q", lvl)
}

type loggerContextKey string

const loggerKey loggerContextKey = "logger"

// ContextWithLogger returns a context carrying the given Logger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// NewLoggerFromContext extracts the Logger stored in ctx, falling back to a
// no-op logger so callers never need a nil check.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok && logger != nil {
		return logger
	}

	return &noneLogger{}
}

// noneLogger discards everything. Used when no logger was installed in ctx,
// so call sites never need to nil-check.
type noneLogger struct{}

func (n *noneLogger) Info(args ...any)                  {}
func (n *noneLogger) Infof(format string, args ...any)  {}
func (n *noneLogger) Infoln(args ...any)                {}
func (n *noneLogger) Error(args ...any)                 {}
func (n *noneLogger) Errorf(format string, args ...any) {}
func (n *noneLogger) Errorln(args ...any)               {}
func (n *noneLogger) Warn(args ...any)                  {}
func (n *noneLogger) Warnf(format string, args ...any)  {}
func (n *noneLogger) Warnln(args ...any)                {}
func (n *noneLogger) Debug(args ...any)                 {}
func (n *noneLogger) Debugf(format string, args ...any) {}
func (n *noneLogger) Debugln(args ...any)               {}
func (n *noneLogger) Fatal(args ...any)                 {}
func (n *noneLogger) Fatalf(format string, args ...any) {}
func (n *noneLogger) WithFields(fields ...any) Logger   { return n }
func (n *noneLogger) Sync() error                       { return nil }

// GoLogger is a minimal Logger backed by the standard library, used by tests
// and by any caller that hasn't wired in mzap.
type GoLogger struct {
	Level  Level
	fields []any
}

func (l *GoLogger) enabled(level Level) bool { return l.Level >= level }

func (l *GoLogger) Info(args ...any) {
	if l.enabled(InfoLevel) {
		log.Print(args...)
	}
}

func (l *GoLogger) Infof(format string, args ...any) {
	if l.enabled(InfoLevel) {
		log.Printf(format, args...)
	}
}

func (l *GoLogger) Infoln(args ...any) {
	if l.enabled(InfoLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Error(args ...any) {
	if l.enabled(ErrorLevel) {
		log.Print(args...)
	}
}

func (l *GoLogger) Errorf(format string, args ...any) {
	if l.enabled(ErrorLevel) {
		log.Printf(format, args...)
	}
}

func (l *GoLogger) Errorln(args ...any) {
	if l.enabled(ErrorLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Warn(args ...any) {
	if l.enabled(WarnLevel) {
		log.Print(args...)
	}
}

func (l *GoLogger) Warnf(format string, args ...any) {
	if l.enabled(WarnLevel) {
		log.Printf(format, args...)
	}
}

func (l *GoLogger) Warnln(args ...any) {
	if l.enabled(WarnLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Debug(args ...any) {
	if l.enabled(DebugLevel) {
		log.Print(args...)
	}
}

func (l *GoLogger) Debugf(format string, args ...any) {
	if l.enabled(DebugLevel) {
		log.Printf(format, args...)
	}
}

func (l *GoLogger) Debugln(args ...any) {
	if l.enabled(DebugLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Fatal(args ...any) {
	log.Print(args...)
}

func (l *GoLogger) Fatalf(format string, args ...any) {
	log.Printf(format, args...)
}

//nolint:ireturn
func (l *GoLogger) WithFields(fields ...any) Logger {
	return &GoLogger{Level: l.Level, fields: append(append([]any{}, l.fields...), fields...)}
}

func (l *GoLogger) Sync() error { return nil }
