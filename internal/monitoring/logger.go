// Package monitoring holds shared diagnostic plumbing for the coverage
// pipeline. Operational messages go through a swappable package logger so an
// embedding shell (or a test) can redirect or mute them without touching the
// process-wide log package.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var debugEnabled atomic.Bool

// SetDebug toggles debug-level diagnostics. Off by default; the render and
// update paths emit per-frame detail only when enabled.
func SetDebug(enabled bool) { debugEnabled.Store(enabled) }

// DebugEnabled reports whether debug diagnostics are on.
func DebugEnabled() bool { return debugEnabled.Load() }

// Debugf logs through Logf only when debug diagnostics are enabled.
func Debugf(format string, v ...interface{}) {
	if debugEnabled.Load() {
		Logf(format, v...)
	}
}
