package forecast

import (
	"sync"
	"testing"
)

func TestStampedeTracker_RecordMiss_Done(t *testing.T) {
	st := newStampedeTracker()
	key := "forecast:35.68:139.69:3:Asia/Tokyo"

	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("RecordMiss first = %d, want 1", got)
	}
	if got := st.RecordMiss(key); got != 2 {
		t.Errorf("RecordMiss second = %d, want 2", got)
	}

	st.Done(key)
	if got := st.active(key); got != 1 {
		t.Errorf("active after one Done = %d, want 1", got)
	}
	st.Done(key)
	st.Done(key) // extra Done is a no-op
	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("after all done, RecordMiss = %d, want 1", got)
	}
	st.Done(key)
}

func TestStampedeTracker_Concurrent(t *testing.T) {
	st := newStampedeTracker()
	key := "k"
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.RecordMiss(key)
			st.Done(key)
		}()
	}
	wg.Wait()
	if got := st.active(key); got != 0 {
		t.Errorf("active after concurrent ops = %d, want 0", got)
	}
}
