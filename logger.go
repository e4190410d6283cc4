package rhi

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// discardHandler drops every record. Enabled reports false so disabled
// call sites never build their attributes.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

var (
	silent = slog.New(discardHandler{})
	logger atomic.Pointer[slog.Logger]
)

func init() {
	logger.Store(silent)
}

// SetLogger routes the log output of rhi, its backends and the driver to
// l. A nil l silences them again, which is also the initial state. It may
// be called while other goroutines are logging.
//
// Levels:
//   - [slog.LevelDebug]: command buffer state changes, layout resolution,
//     barrier batches, descriptor arena allocations
//   - [slog.LevelInfo]: instance and device creation
//   - [slog.LevelWarn]: missing optional features such as raytracing or
//     timestamp queries
//
// Any slog handler works; cmd/rhiinfo installs a charmbracelet/log logger:
//
//	rhi.SetLogger(slog.New(log.NewWithOptions(os.Stderr, log.Options{Level: log.DebugLevel})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent
	}
	logger.Store(l)
}

// Logger returns the logger installed by SetLogger.
func Logger() *slog.Logger {
	return logger.Load()
}
