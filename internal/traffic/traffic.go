// Package traffic keeps sliding windows of request outcomes for health and
// load reporting. Outcomes older than the retention period are discarded.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how far back any window query can see.
const DefaultRetention = 5 * time.Minute

var defaultTracker = NewTracker(DefaultRetention, nil)

// RecordSuccess records a request that the gateway answered.
func RecordSuccess() { defaultTracker.RecordSuccess() }

// RecordError records a request that failed because of an upstream or internal error.
// Caller mistakes (validation failures) are not errors here.
func RecordError() { defaultTracker.RecordError() }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.RecordDenied() }

// RequestCount returns successes, errors and denials within window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// DenialCount returns denials within window.
func DenialCount(window time.Duration) int { return defaultTracker.DenialCount(window) }

// ErrorRate returns (errors, successes+errors) within window. Denials are excluded.
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears all recorded outcomes. For tests only.
func Reset() { defaultTracker.Reset() }

// Tracker maintains timestamped outcome windows.
type Tracker struct {
	mu        sync.Mutex
	retention time.Duration
	now       func() time.Time

	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// NewTracker returns a Tracker keeping outcomes for retention. now defaults to time.Now.
func NewTracker(retention time.Duration, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention, now: now}
}

func (t *Tracker) RecordSuccess() { t.record(&t.successTimes) }

func (t *Tracker) RecordError() { t.record(&t.errorTimes) }

func (t *Tracker) RecordDenied() { t.record(&t.deniedTimes) }

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.successTimes, cutoff) +
		countSince(t.errorTimes, cutoff) +
		countSince(t.deniedTimes, cutoff)
}

func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errCount := countSince(t.errorTimes, cutoff)
	return errCount, errCount + countSince(t.successTimes, cutoff)
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

// countSince counts timestamps not before cutoff. Slices are append-ordered.
func countSince(times []time.Time, cutoff time.Time) int {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return len(times) - i
}

// pruneLocked drops timestamps older than the retention period. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
