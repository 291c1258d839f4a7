// Package expiring provides a small TTL-keyed map. Entries are evicted by a
// per-entry timer unless taken or replaced first; replacing an entry cancels
// the pending eviction of the old one.
package expiring

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value V
	timer *time.Timer
}

// Map holds values for a bounded time window. The zero value is not usable;
// construct with New or NewWithEvict.
type Map[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[K]*entry[V]
	onEvict func(K, V)
	stopped bool
}

// New returns a map whose entries live for ttl after their last Put.
func New[K comparable, V any](ttl time.Duration) *Map[K, V] {
	return NewWithEvict[K, V](ttl, nil)
}

// NewWithEvict is New with a hook invoked whenever a timer evicts an entry.
// The hook does not fire for Take or replacement.
func NewWithEvict[K comparable, V any](ttl time.Duration, onEvict func(K, V)) *Map[K, V] {
	return &Map[K, V]{
		ttl:     ttl,
		entries: make(map[K]*entry[V]),
		onEvict: onEvict,
	}
}

// Put stores value under key, replacing any existing entry and cancelling its
// pending eviction. The new entry expires ttl from now.
func (m *Map[K, V]) Put(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if old, ok := m.entries[key]; ok {
		old.timer.Stop()
	}
	e := &entry[V]{value: value}
	e.timer = time.AfterFunc(m.ttl, func() { m.expire(key, e) })
	m.entries[key] = e
}

// Take returns and removes the value for key, cancelling its eviction timer.
func (m *Map[K, V]) Take(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	e.timer.Stop()
	delete(m.entries, key)
	return e.value, true
}

// Len returns the number of live entries.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stop cancels all pending evictions and rejects further Puts. Useful for
// orderly shutdown and tests.
func (m *Map[K, V]) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for k, e := range m.entries {
		e.timer.Stop()
		delete(m.entries, k)
	}
}

// expire removes the entry if it is still the one the timer was armed for. A
// Put that raced with the timer firing leaves the newer entry untouched.
func (m *Map[K, V]) expire(key K, armed *entry[V]) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok || e != armed {
		m.mu.Unlock()
		return
	}
	delete(m.entries, key)
	onEvict := m.onEvict
	m.mu.Unlock()
	if onEvict != nil {
		onEvict(key, e.value)
	}
}
