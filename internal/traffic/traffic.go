// Package traffic keeps a sliding window of ingestion outcomes. /health reads
// the upstream failure rate from it.
package traffic

import (
	"sync"
	"time"
)

// retention bounds memory: outcomes older than this are dropped on write.
const retention = 15 * time.Minute

var defaultTracker = NewTracker(time.Now)

// RecordSuccess records a successful upstream fetch on the process-wide tracker.
func RecordSuccess() { defaultTracker.Record(true) }

// RecordFailure records a failed upstream fetch on the process-wide tracker.
func RecordFailure() { defaultTracker.Record(false) }

// FailureRate reports the process-wide (failures, total) within window.
func FailureRate(window time.Duration) (failures, total int) {
	return defaultTracker.FailureRate(window)
}

// Reset clears the process-wide tracker. For tests.
func Reset() { defaultTracker.Reset() }

type outcome struct {
	at time.Time
	ok bool
}

// Tracker stores outcome timestamps in arrival order. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	now      func() time.Time
	outcomes []outcome
}

// NewTracker creates a Tracker reading time from now.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

// Record appends one outcome and prunes entries past retention.
func (t *Tracker) Record(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.outcomes = append(t.outcomes, outcome{at: now, ok: ok})
	t.pruneLocked(now.Add(-retention))
}

// FailureRate returns (failures, total) for outcomes not older than window.
func (t *Tracker) FailureRate(window time.Duration) (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	for i := len(t.outcomes) - 1; i >= 0; i-- {
		o := t.outcomes[i]
		if o.at.Before(cutoff) {
			break
		}
		total++
		if !o.ok {
			failures++
		}
	}
	return failures, total
}

// Reset drops every recorded outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes = nil
}

// pruneLocked drops the leading outcomes recorded before cutoff. Caller holds mu.
func (t *Tracker) pruneLocked(cutoff time.Time) {
	i := 0
	for i < len(t.outcomes) && t.outcomes[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.outcomes = append(t.outcomes[:0], t.outcomes[i:]...)
	}
}
