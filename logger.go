package arenamap

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with arenamap-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogPut logs a put-family write operation.
func (l *Logger) LogPut(op string, keySize, valueSize int, err error) {
	if err != nil {
		l.Error("write failed",
			"op", op,
			"key_bytes", keySize,
			"value_bytes", valueSize,
			"error", err,
		)
	} else {
		l.Debug("write completed",
			"op", op,
			"key_bytes", keySize,
			"value_bytes", valueSize,
		)
	}
}

// LogRemove logs a remove operation.
func (l *Logger) LogRemove(removed bool, err error) {
	if err != nil {
		l.Error("remove failed", "error", err)
	} else {
		l.Debug("remove completed", "removed", removed)
	}
}

// LogCompute logs a compute operation.
func (l *Logger) LogCompute(applied bool, err error) {
	if err != nil {
		l.Error("compute failed", "error", err)
	} else {
		l.Debug("compute completed", "applied", applied)
	}
}

// LogScan logs a finished scan.
func (l *Logger) LogScan(entries int, descending bool, err error) {
	if err != nil {
		l.Error("scan failed",
			"entries", entries,
			"descending", descending,
			"error", err,
		)
	} else {
		l.Debug("scan completed",
			"entries", entries,
			"descending", descending,
		)
	}
}

// LogClose logs map shutdown with final usage numbers.
func (l *Logger) LogClose(stats Stats, err error) {
	if err != nil {
		l.Error("close failed", "error", err)
	} else {
		l.Info("map closed",
			"entries", stats.Entries,
			"chunks", stats.Chunks,
			"bytes_live", stats.BytesLive,
			"bytes_reserved", stats.BytesReserved,
		)
	}
}
