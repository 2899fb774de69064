package gravsim

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
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
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for gravsim and the compute devices of all
// open simulations. By default, gravsim produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore silence.
//
// Log levels used by gravsim:
//   - [slog.LevelDebug]: per-frame diagnostics (dispatch counts, swaps)
//   - [slog.LevelInfo]: lifecycle events (stage advanced, pipeline ready)
//   - [slog.LevelWarn]: stalls waiting for a pipeline
//   - [slog.LevelError]: pipeline compilation failures
//
// Example:
//
//	gravsim.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	liveMu.RLock()
	defer liveMu.RUnlock()
	for s := range live {
		propagateLogger(s.dev, l)
	}
}

// Logger returns the current logger used by gravsim.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by compute devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a device if it implements loggerSetter.
func propagateLogger(dev any, l *slog.Logger) {
	if ls, ok := dev.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

// live tracks open simulations so SetLogger reaches their devices.
var (
	liveMu sync.RWMutex
	live   = make(map[*Simulation]struct{})
)

func track(s *Simulation) {
	liveMu.Lock()
	live[s] = struct{}{}
	liveMu.Unlock()
}

func untrack(s *Simulation) {
	liveMu.Lock()
	delete(live, s)
	liveMu.Unlock()
}
