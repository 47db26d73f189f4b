package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/dispatch/compute"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with running pipelines.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger used by dispatch and the compute backends
// it drives. By default, dispatch produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the default
// silent behavior. A pipeline created with WithLogger keeps its own logger.
//
// Log levels used by dispatch:
//   - [slog.LevelDebug]: per-step diagnostics (buffer sizes, geometry, data[1])
//   - [slog.LevelInfo]: device selection and run completion
//   - [slog.LevelWarn]: tolerated failures (work-group query, release errors)
//   - [slog.LevelError]: classified failures, logged before they are returned
//
// Example:
//
//	dispatch.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current package logger.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by runtimes that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes l to rt if it implements loggerSetter. Called at
// the start of every run so the runtime logs with the pipeline's logger.
func propagateLogger(rt compute.Runtime, l *slog.Logger) {
	if ls, ok := rt.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
