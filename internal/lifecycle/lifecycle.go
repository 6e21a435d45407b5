// Package lifecycle holds process-wide drain state shared by /health and shutdown.
package lifecycle

import (
	"sync/atomic"
	"time"
)

type drain struct {
	reason string
	since  time.Time
}

var current atomic.Pointer[drain]

// BeginShutdown marks the process as draining. The first reason wins.
func BeginShutdown(reason string) {
	current.CompareAndSwap(nil, &drain{reason: reason, since: time.Now()})
}

// reset clears the drain state.
func reset() { current.Store(nil) }

// IsShuttingDown reports whether the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return current.Load() != nil
}

// ShutdownReason returns the reason passed to BeginShutdown, or "" when not draining.
func ShutdownReason() string {
	if d := current.Load(); d != nil {
		return d.reason
	}
	return ""
}

// DrainingFor returns how long the process has been draining, or 0.
func DrainingFor() time.Duration {
	if d := current.Load(); d != nil {
		return time.Since(d.since)
	}
	return 0
}
