package expiring

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPutTake(t *testing.T) {
	m := New[string, int](time.Minute)
	defer m.Stop()

	m.Put("a", 1)
	if got := m.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
	v, ok := m.Take("a")
	if !ok || v != 1 {
		t.Fatalf("Take = (%d, %v), want (1, true)", v, ok)
	}
	if _, ok := m.Take("a"); ok {
		t.Fatal("second Take should miss")
	}
}

func TestReplaceCancelsFirstEviction(t *testing.T) {
	var evictions atomic.Int32
	m := NewWithEvict(80*time.Millisecond, func(string, int) {
		evictions.Add(1)
	})
	defer m.Stop()

	m.Put("k", 1)
	m.Put("k", 2)

	v, ok := m.Take("k")
	if !ok || v != 2 {
		t.Fatalf("Take = (%d, %v), want (2, true)", v, ok)
	}

	// Both timers are cancelled (first by replacement, second by Take), so
	// nothing may evict even well past the TTL.
	time.Sleep(200 * time.Millisecond)
	if n := evictions.Load(); n != 0 {
		t.Fatalf("evictions = %d, want 0", n)
	}
}

func TestTimedEviction(t *testing.T) {
	evicted := make(chan string, 1)
	m := NewWithEvict(30*time.Millisecond, func(k string, _ int) {
		evicted <- k
	})
	defer m.Stop()

	m.Put("k", 7)
	select {
	case k := <-evicted:
		if k != "k" {
			t.Fatalf("evicted key %q", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("entry was not evicted")
	}
	if _, ok := m.Take("k"); ok {
		t.Fatal("entry still present after eviction")
	}
}

func TestStop(t *testing.T) {
	var evictions atomic.Int32
	m := NewWithEvict(20*time.Millisecond, func(string, int) {
		evictions.Add(1)
	})
	m.Put("a", 1)
	m.Put("b", 2)
	m.Stop()
	if got := m.Len(); got != 0 {
		t.Fatalf("Len after Stop = %d, want 0", got)
	}
	m.Put("c", 3)
	if got := m.Len(); got != 0 {
		t.Fatalf("Put after Stop stored an entry")
	}
	time.Sleep(60 * time.Millisecond)
	if n := evictions.Load(); n != 0 {
		t.Fatalf("evictions after Stop = %d, want 0", n)
	}
}
