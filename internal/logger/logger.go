// Package logger provides the process-wide structured logger.
//
// It keeps a single zap core behind package-level functions so every
// component can grab a scoped logger without plumbing one through
// constructors:
//
//	log := logger.ComponentLogger("invoker")
//	log.Info("process started", zap.String("sessionID", id))
package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base     *zap.Logger
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	console  bool
	logFile  *os.File
	mu       sync.Mutex
	initDone bool
)

// SetDebug enables debug level logging
func SetDebug(enabled bool) {
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// SetLevel parses a level name ("debug", "info", "warn", "error") and applies it.
func SetLevel(name string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.SetLevel(l)
	return nil
}

// SetConsole switches between colored console output and JSON.
// Must be called before Init to take effect.
func SetConsole(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	console = enabled
}

// Init initializes the logger writing to path. An empty path or "stderr"
// writes to stderr, "stdout" to stdout. Subsequent calls are no-ops until Reset.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}

	var ws zapcore.WriteSyncer
	switch path {
	case "", "stderr":
		ws = zapcore.Lock(os.Stderr)
	case "stdout":
		ws = zapcore.Lock(os.Stdout)
	default:
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		logFile = f
		ws = zapcore.AddSync(f)
	}

	build(ws)
	base.Debug("logger initialized", zap.String("path", path))
	return nil
}

func build(ws zapcore.WriteSyncer) {
	var enc zapcore.Encoder
	if console {
		enc = zapcore.NewConsoleEncoder(encoderConfig(true))
	} else {
		enc = zapcore.NewJSONEncoder(encoderConfig(false))
	}
	base = zap.New(zapcore.NewCore(enc, ws, level), zap.AddCaller())
	initDone = true
}

func ensureInit() {
	if !initDone {
		build(zapcore.Lock(os.Stderr))
	}
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}

	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// ComponentLogger returns a logger with the component field pre-attached.
//
// Example:
//
//	log := logger.ComponentLogger("router")
//	log.Info("session created", zap.String("sessionID", sess.ID))
func ComponentLogger(component string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()
	return base.With(zap.String("component", component))
}

// WithSession returns a logger with the session ID pre-attached.
func WithSession(sessionID string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()
	return base.With(zap.String("sessionID", sessionID))
}

// Logger returns the underlying zap logger.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()
	return base
}

// Close flushes buffered entries and closes the log file, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if base != nil {
		_ = base.Sync()
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Reset resets the logger state, allowing reinitialization.
// This is primarily for testing purposes.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	base = nil
	initDone = false
	console = false
	level.SetLevel(zapcore.InfoLevel)
}
