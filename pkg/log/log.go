// Package log provides structured logging for sparten built on rs/zerolog.
//
// Components obtain a named logger and attach contextual key/value pairs once,
// then log events with per-event fields:
//
//	logger := log.GetLoggerWithName("decomp").With(
//	    log.ComponentKey, "cpals",
//	)
//	logger.Info("iteration finished",
//	    log.IterationKey, iter,
//	    log.FitKey, fit,
//	)
//
// Logging defaults to the warn level on stderr so library users are not
// spammed; drivers raise the level explicitly with SetLevel.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Standard field keys used across sparten packages.
const (
	ComponentKey  = "component"
	OperationKey  = "operation"
	ModeKey       = "mode"
	IterationKey  = "iteration"
	NnzKey        = "nnz"
	RankKey       = "rank"
	NdimsKey      = "ndims"
	FitKey        = "fit"
	ResNormKey    = "res_norm"
	DurationMsKey = "duration_ms"
	PathKey       = "path"
)

// Common operation values.
const (
	OperationMttkrp    = "mttkrp"
	OperationInnerprod = "innerprod"
	OperationCpAls     = "cpals"
	OperationImport    = "import"
	OperationExport    = "export"
)

// Logger is the structured logging interface used throughout sparten.
// Key/value pairs alternate: key1, value1, key2, value2, ...
type Logger interface {
	// With returns a child logger with the fields attached to every event.
	With(keysAndValues ...interface{}) Logger

	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

var (
	mu    sync.RWMutex
	root  = zerolog.New(os.Stderr).With().Timestamp().Logger()
	level = zerolog.WarnLevel
)

// SetLevel sets the global log level ("debug", "info", "warn", "error").
// Unknown names leave the level unchanged.
func SetLevel(name string) {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	level = lvl
}

// SetOutput redirects all sparten loggers to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root = zerolog.New(w).With().Timestamp().Logger()
}

// GetLoggerWithName returns a logger tagged with the given subsystem name.
func GetLoggerWithName(name string) Logger {
	mu.RLock()
	defer mu.RUnlock()
	zl := root.Level(level).With().Str("logger", name).Logger()
	return &zerologLogger{zl: zl}
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l *zerologLogger) With(keysAndValues ...interface{}) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, keysAndValues[i+1])
	}
	return &zerologLogger{zl: ctx.Logger()}
}

func (l *zerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	emit(l.zl.Debug(), msg, keysAndValues)
}

func (l *zerologLogger) Info(msg string, keysAndValues ...interface{}) {
	emit(l.zl.Info(), msg, keysAndValues)
}

func (l *zerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	emit(l.zl.Warn(), msg, keysAndValues)
}

func (l *zerologLogger) Error(msg string, keysAndValues ...interface{}) {
	emit(l.zl.Error(), msg, keysAndValues)
}

func emit(ev *zerolog.Event, msg string, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, keysAndValues[i+1])
	}
	ev.Msg(msg)
}
