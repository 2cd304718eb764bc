package cache

import (
	"testing"
	"time"
)

func TestGroup_CleanupClearStats(t *testing.T) {
	clock := newFakeClock()
	geo := New[string]("geocode", 10, time.Second, WithClock(clock.Now))
	fc := New[int]("forecast", 10, time.Hour, WithClock(clock.Now))
	geo.Set("a", "x")
	geo.Set("b", "y")
	fc.Set("c", 1)

	g := NewGroup(geo, fc)
	clock.Advance(2 * time.Second)
	if removed := g.Cleanup(); removed != 2 {
		t.Errorf("Cleanup() = %d, want 2", removed)
	}

	stats := g.Stats()
	if stats["geocode"].Size != 0 {
		t.Errorf("geocode size = %d, want 0", stats["geocode"].Size)
	}
	if stats["forecast"].Size != 1 {
		t.Errorf("forecast size = %d, want 1", stats["forecast"].Size)
	}

	g.ClearAll()
	if s := fc.Stats(); s.Size != 0 {
		t.Errorf("forecast size after ClearAll = %d, want 0", s.Size)
	}
}

func TestJanitor_Start_RejectsNonPositiveInterval(t *testing.T) {
	j := NewJanitor(NewGroup(), 0, nil)
	if err := j.Start(); err == nil {
		t.Fatal("Start() error = nil, want error for zero interval")
	}
}

func TestJanitor_SweepsExpiredEntries(t *testing.T) {
	c := New[int]("geocode", 10, 10*time.Millisecond)
	c.Set("k", 1)

	j := NewJanitor(NewGroup(c), 20*time.Millisecond, nil)
	if err := j.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer j.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Stats().Size == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("janitor did not remove expired entry")
}
