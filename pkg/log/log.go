// Copyright 2025 The Netipam Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides leveled, structured logging backed by zap. Loggers
// carry key/value context and can be attached to a context.Context.
package log

import (
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the log level.
type Level = zapcore.Level

// The supported log levels.
const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelError = zapcore.ErrorLevel
)

// LevelFromString parses the log level.
func LevelFromString(lvl string) (Level, error) {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "error":
		return LevelError, nil
	default:
		return LevelDebug, fmt.Errorf("unknown log level: %q", lvl)
	}
}

// Logger describes the logger interface.
type Logger interface {
	New(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Enabled(lvl Level) bool
}

type logger struct {
	logger *zap.Logger
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...any) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...any) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...any) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func (l *logger) Enabled(lvl Level) bool {
	return l.logger.Core().Enabled(lvl)
}

func (l *logger) WithOptions(opts ...zap.Option) Logger {
	return &logger{logger: l.logger.WithOptions(opts...)}
}

func convertCtx(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(ctx[i]), ctx[i+1]))
	}
	return fields
}

// Config configures the logging setup.
type Config struct {
	// Level of the logging, one of debug, info, error.
	Level string `toml:"level,omitempty"`
	// StacktraceLevel sets from which level stacktraces are included, it
	// defaults to "none".
	StacktraceLevel string `toml:"stacktrace_level,omitempty"`
	// Format of the logging, "human" or "json".
	Format string `toml:"format,omitempty"`
}

// Validate checks that the level is known.
func (cfg Config) Validate() error {
	_, err := LevelFromString(cfg.Level)
	return err
}

// Setup configures the package-wide root logger. It must be called before any
// logging happens; packages that log before Setup get a nop logger.
func Setup(cfg Config) error {
	lvl, err := LevelFromString(cfg.Level)
	if err != nil {
		return err
	}
	encoding := "json"
	if cfg.Format == "human" || cfg.Format == "" {
		encoding = "console"
	}
	zCfg := zap.NewProductionConfig()
	zCfg.Level = zap.NewAtomicLevelAt(lvl)
	zCfg.Encoding = encoding
	zCfg.DisableStacktrace = true
	zCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.StacktraceLevel != "" && cfg.StacktraceLevel != "none" {
		zCfg.DisableStacktrace = false
	}
	zLogger, err := zCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	setRoot(&logger{logger: zLogger})
	zap.ReplaceGlobals(zLogger)
	return nil
}

var root Logger = &logger{logger: zap.NewNop()}

func setRoot(l Logger) {
	root = l
}

// Root returns the root logger. It never returns nil.
func Root() Logger {
	return root
}

// New creates a logger with the given context, derived from the root logger.
func New(ctx ...any) Logger {
	return Root().New(ctx...)
}

// Discard sets the root logger up to discard all log entries. This is useful
// for testing.
func Discard() {
	setRoot(&logger{logger: zap.NewNop()})
}

// Debug logs at debug level on the root logger.
func Debug(msg string, ctx ...any) { Root().Debug(msg, ctx...) }

// Info logs at info level on the root logger.
func Info(msg string, ctx ...any) { Root().Info(msg, ctx...) }

// Error logs at error level on the root logger.
func Error(msg string, ctx ...any) { Root().Error(msg, ctx...) }

// HandlePanic catches panics and logs them. Every goroutine must have this
// function deferred as the first statement.
func HandlePanic() {
	if msg := recover(); msg != nil {
		Error("Panic", "msg", msg, "stack", string(debug.Stack()))
		panic(msg)
	}
}
