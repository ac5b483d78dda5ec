package util

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	loggerMu sync.RWMutex
	logger   *slog.Logger
)

// InitLogger initializes the global slog logger with appropriate level.
// Logs go to stderr so that media written to stdout stays clean.
func InitLogger(verbose bool) {
	SetLogOutput(os.Stderr, verbose)
}

// SetLogOutput replaces the global logger with a text handler writing to w.
func SetLogOutput(w io.Writer, verbose bool) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo, // Default level
	}

	if verbose {
		opts.Level = slog.LevelDebug
	}

	l := slog.New(slog.NewTextHandler(w, opts))

	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()

	slog.SetDefault(l)
}

// GetLogger returns the configured logger instance
func GetLogger() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()

	if l == nil {
		// Fallback initialization with INFO level
		InitLogger(false)
		return GetLogger()
	}
	return l
}
