package common

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var (
	loggerPtr      atomic.Pointer[slog.Logger]
	productionMode atomic.Bool
)

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger shared by every engine package.
// By default the engine produces no log output. Passing nil restores the silent default.
//
// Log levels used by the engine:
//   - slog.LevelDebug: resource allocation, bind group creation, pipeline cache hits
//   - slog.LevelInfo: lifecycle events such as device restore and profiler output
//   - slog.LevelWarn: misuse reports and pipeline flushes
//   - slog.LevelError: shader compile failures and device errors
//
// Parameters:
//   - l: the logger to install, or nil to disable logging
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the logger shared by every engine package.
//
// Returns:
//   - *slog.Logger: the active logger (never nil)
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// SetProductionMode toggles production mode. In production mode misuse reports made through Warn are suppressed.
//
// Parameters:
//   - enabled: true to suppress misuse warnings
func SetProductionMode(enabled bool) {
	productionMode.Store(enabled)
}

// ProductionMode reports whether production mode is enabled.
func ProductionMode() bool {
	return productionMode.Load()
}

// Warn reports API misuse (a wrong resource type passed to a setter, an operation on a destroyed object).
// The operation that triggered it is expected to be a no-op. Nothing is logged in production mode.
//
// Parameters:
//   - msg: the warning message
//   - args: slog key/value attributes
func Warn(msg string, args ...any) {
	if productionMode.Load() {
		return
	}
	Logger().Warn(msg, args...)
}
