package forecast

import "sync"

// stampedeTracker counts concurrent cache misses per key. A count above one
// means several callers missed the same forecast at once.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{activeMisses: make(map[string]int)}
}

// RecordMiss records a miss for key and returns the concurrent count after
// incrementing. Pair every call with Done(key).
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[key]++
	return st.activeMisses[key]
}

// Done records that a miss for key has been resolved.
func (st *stampedeTracker) Done(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.activeMisses[key]; ok && count > 0 {
		st.activeMisses[key]--
		if st.activeMisses[key] == 0 {
			delete(st.activeMisses, key)
		}
	}
}

func (st *stampedeTracker) active(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.activeMisses[key]
}
