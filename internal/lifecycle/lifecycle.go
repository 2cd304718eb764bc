// Package lifecycle holds process-wide start time and drain flag read by the
// health endpoint.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	startedAt    atomic.Int64
)

// MarkStarted records the process start time. Call once from main.
func MarkStarted(t time.Time) {
	startedAt.Store(t.UnixNano())
}

// Uptime returns time since MarkStarted, or 0 if it was never called.
func Uptime() time.Duration {
	ns := startedAt.Load()
	if ns == 0 {
		return 0
	}
	return time.Since(time.Unix(0, ns))
}

// SetShuttingDown sets the drain flag. Call when SIGTERM/SIGINT is received.
// Health returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
