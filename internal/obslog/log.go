// Package obslog wraps log/slog with a package-scoped logger so the
// partition kernel, pipeline, and dispatcher log one line per lifecycle
// event (compile start, pass failure, cache miss, execute done)
// without each package constructing its own slog.Logger.
package obslog

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
}

// SetLogger replaces the package logger; tests use this to capture output
// or silence it entirely (slog.New(slog.DiscardHandler) equivalent via a
// handler that writes to io.Discard).
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

// L returns the current package-scoped logger.
func L() *slog.Logger {
	return logger.Load()
}
